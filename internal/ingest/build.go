package ingest

import (
	"fmt"

	"github.com/akave-ai/browserlog/internal/model"
)

// Build maps a payload onto a LogEntry, filling defaults for every missing
// field. ip is the caller address resolved by the transport, never a payload
// value. ID and ReceivedAt are left for the caller to assign.
func Build(p Payload, ip string) (*model.LogEntry, error) {
	requestBody, err := DecodeBase64(p.RequestBody)
	if err != nil {
		return nil, fmt.Errorf("decode requestBody: %w", err)
	}
	response, err := DecodeBase64(p.Response)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	html, err := DecodeBase64(p.HTML)
	if err != nil {
		return nil, fmt.Errorf("decode html: %w", err)
	}

	statusCode := ""
	if !p.StatusCode.Falsy() {
		statusCode = p.StatusCode.Text()
	}
	employee := model.DefaultEmployee
	if !p.Employee.IsNull() {
		employee = p.Employee.Text()
	}

	return &model.LogEntry{
		Time:         p.Time.Text(),
		URL:          p.URL.Text(),
		Method:       p.Method.Text(),
		Type:         p.Type.Text(),
		Initiator:    p.Initiator.Text(),
		TabID:        p.TabID.Text(),
		RequestID:    p.RequestID.Text(),
		RequestBody:  requestBody,
		Response:     response,
		StatusCode:   statusCode,
		Source:       p.Source.Text(),
		HTML:         html,
		ResponseTime: p.ResponseTime.Text(),
		Employee:     employee,
		IPAddress:    ip,
	}, nil
}
