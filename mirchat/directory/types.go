package directory

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// User is one entry of the directory listing.
type User struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// UnmarshalJSON accepts numeric user ids as well as strings.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID   json.RawMessage `json:"userId"`
		UserName string          `json:"userName"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.UserName = raw.UserName
	u.UserID = ""
	id := bytes.TrimSpace(raw.UserID)
	if len(id) == 0 || bytes.Equal(id, []byte("null")) {
		return nil
	}
	if id[0] == '"' {
		return json.Unmarshal(id, &u.UserID)
	}
	var n json.Number
	if err := json.Unmarshal(id, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	u.UserID = n.String()
	return nil
}

// UsersBody is the body of a successful listing.
type UsersBody struct {
	Users []User `json:"users"`
}

// Envelope is the response shape of GET /v1/users. The body may be embedded
// either as an object or as a JSON-encoded string.
type Envelope struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

// Users decodes the embedded body.
func (e Envelope) Users() ([]User, error) {
	raw := bytes.TrimSpace(e.Body)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = []byte(s)
	}
	var body UsersBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body.Users, nil
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
