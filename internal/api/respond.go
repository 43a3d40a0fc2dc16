package api

import (
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
)

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeFailure(w http.ResponseWriter, status int, msg, details string) {
	response.WriteJSON(w, status, failureResponse{Success: false, Error: msg, Details: details})
}
