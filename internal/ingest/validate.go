package ingest

import (
	"crypto/subtle"
	"net/http"

	"github.com/akave-ai/browserlog/internal/config"
)

// Rejection is an access-control outcome. Rejected requests are answered
// immediately and never stored.
type Rejection struct {
	Status  int
	Message string
}

func (r *Rejection) Error() string { return r.Message }

var (
	// ErrNotFound hides the endpoint from anything that is not a POST.
	ErrNotFound       = &Rejection{Status: http.StatusNotFound, Message: "Not Found"}
	ErrInvalidRequest = &Rejection{Status: http.StatusBadRequest, Message: "Invalid request"}
	ErrInvalidKey     = &Rejection{Status: http.StatusForbidden, Message: "Invalid key"}
)

// Validator checks the header secret and the plugin key of incoming requests.
type Validator struct {
	secretHeader string
	secret       []byte
	pluginKey    []byte
}

func NewValidator(cfg config.IngestConfig) *Validator {
	return &Validator{
		secretHeader: cfg.SecretHeader,
		secret:       []byte(cfg.Secret),
		pluginKey:    []byte(cfg.PluginKey),
	}
}

// CheckAccess rejects anything but a POST carrying the configured secret header.
func (v *Validator) CheckAccess(method string, header http.Header) error {
	if method != http.MethodPost {
		return ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(header.Get(v.secretHeader)), v.secret) != 1 {
		return ErrInvalidRequest
	}
	return nil
}

// Authorize parses the body and checks its plugin key. Parse errors are
// returned as is; key problems come back as a *Rejection. A key that is not a
// JSON string never matches.
func (v *Validator) Authorize(body []byte) (Payload, error) {
	p, err := ParsePayload(body)
	if err != nil {
		return Payload{}, err
	}
	if !p.PluginKey.Present() {
		return Payload{}, ErrInvalidRequest
	}
	key, ok := p.PluginKey.AsString()
	if !ok || subtle.ConstantTimeCompare([]byte(key), v.pluginKey) != 1 {
		return Payload{}, ErrInvalidKey
	}
	return p, nil
}

