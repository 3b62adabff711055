package handlers

import (
	"github.com/aurumlife/enrichment-backend/internal/middleware"
)

type APIError = middleware.APIError

type ErrorEnvelope = middleware.ErrorEnvelope

var (
	RespondError = middleware.RespondError
	RespondOK    = middleware.RespondOK
)
