package transport

// ClientVersion identifies this client generation to the service.
const ClientVersion = "mg16.6.0"

const (
	EndpointGetSecret    = "get_secret"
	EndpointUpdateSecret = "update_secret"
)

// GetPayload requests the decryptable tree. PublicKey is present only on
// first contact, before the device holds an application key; the server
// records it as the device's signing identity.
type GetPayload struct {
	ClientVersion    string   `json:"clientVersion"`
	ClientID         string   `json:"clientId"`
	PublicKey        string   `json:"publicKey,omitempty"`
	RequestedRecords []string `json:"requestedRecords,omitempty"`
}

// UpdatePayload writes back one record. Data is the base64url of the
// record payload sealed under the existing record key; the server never
// sees plaintext.
type UpdatePayload struct {
	ClientVersion string `json:"clientVersion"`
	ClientID      string `json:"clientId"`
	RecordUID     string `json:"recordUid"`
	Data          string `json:"data"`
	Revision      int64  `json:"revision"`
}
