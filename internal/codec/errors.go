package codec

import "errors"

// ErrNoCompatibleCodec is returned by callers that wrap Select when the
// host and client capability masks share no codec. internal/session
// re-exports it as session.ErrNoCompatibleCodec.
var ErrNoCompatibleCodec = errors.New("codec: no compatible codec in host/client intersection")
