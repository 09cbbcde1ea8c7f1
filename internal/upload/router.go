package upload

// Transport selects the upload path for a file.
type Transport string

const (
	// TransportDirect sends the whole file in one multipart request.
	TransportDirect Transport = "direct"
	// TransportChunked uses the resumable chunked protocol.
	TransportChunked Transport = "chunked"
)

// Route picks the transport for a file size. Files at or above the
// threshold must be fragmented because the edge in front of the service
// caps request bodies. Pure function; keep it that way for testability.
func Route(sizeBytes, thresholdBytes int64) Transport {
	if sizeBytes >= thresholdBytes {
		return TransportChunked
	}
	return TransportDirect
}
