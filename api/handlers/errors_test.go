package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/vidgrab/internal/app"
	"github.com/yourusername/vidgrab/internal/domain"
	"github.com/yourusername/vidgrab/internal/infrastructure"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: url is required", app.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: abc", infrastructure.ErrDownloadNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: abc", domain.ErrVideoUnavailable), http.StatusNotFound},
		{fmt.Errorf("%w: PLx", domain.ErrCollectionUnavailable), http.StatusNotFound},
		{fmt.Errorf("%w: download is already queued", app.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("lookup: %w", domain.ErrRateLimited), http.StatusTooManyRequests},
		{domain.ErrExtractionFailed, http.StatusBadGateway},
		{errors.Join(domain.ErrRateLimited, domain.ErrExtractionFailed), http.StatusTooManyRequests},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
