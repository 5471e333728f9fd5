package schemas

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Rejection is returned when a request is refused before anything runs. It
// is written as a bare JSON array of reasons.
type Rejection struct {
	Status  int
	Reasons []string
}

func NewRejection(status int, reasons ...string) *Rejection {
	if status == 0 {
		status = http.StatusBadRequest
	}
	if reasons == nil {
		reasons = []string{}
	}
	return &Rejection{Status: status, Reasons: reasons}
}

func (r *Rejection) Error() string { return strings.Join(r.Reasons, "; ") }

func (r *Rejection) GetStatus() int { return r.Status }

func (r *Rejection) MarshalJSON() ([]byte, error) { return json.Marshal(r.Reasons) }
