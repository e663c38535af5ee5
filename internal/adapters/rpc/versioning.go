package rpc

// The daemon versions the two formats it owns. The envelope version covers
// send_message params and the message and response text carried in them. The
// notification version covers wallet_event params on the event stream.
const (
	envelopeVersion       = 1
	oldestEnvelopeVersion = 1
	notificationVersion   = 1
)

type versionInfo struct {
	Envelope           int      `json:"envelope_version"`
	OldestEnvelope     int      `json:"oldest_envelope_version"`
	Notification       int      `json:"notification_version"`
	NotificationMethod string   `json:"notification_method"`
	StreamHeadHeader   string   `json:"stream_head_header"`
	Methods            []string `json:"methods"`
}

func currentVersions() versionInfo {
	return versionInfo{
		Envelope:           envelopeVersion,
		OldestEnvelope:     oldestEnvelopeVersion,
		Notification:       notificationVersion,
		NotificationMethod: eventMethod,
		StreamHeadHeader:   streamHeadHeader,
		Methods:            []string{methodSendMessage, methodHealthCheck, methodRPCVersion},
	}
}

// checkEnvelopeVersion accepts requests that name no version as current.
func checkEnvelopeVersion(requested *int) *rpcError {
	switch {
	case requested == nil:
		return nil
	case *requested < oldestEnvelopeVersion:
		return &rpcError{Code: codeEnvelopeRetired, Message: "envelope version is no longer accepted"}
	case *requested > envelopeVersion:
		return &rpcError{Code: codeEnvelopeUnknown, Message: "envelope version is newer than this daemon"}
	}
	return nil
}
