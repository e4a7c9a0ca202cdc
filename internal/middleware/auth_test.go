package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerStub struct {
	loggedTokens map[string]bool
	err          error
}

func (c *checkerStub) IsLogged(_ context.Context, token string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.loggedTokens[token], nil
}

func TestAuthMiddlewareHandler_AuthCheck(t *testing.T) {
	checker := &checkerStub{
		loggedTokens: map[string]bool{
			"valid-token": true,
		},
	}
	authMiddleware := NewAuthMiddlewareHandler(checker)

	testCases := []struct {
		name               string
		path               string
		method             string
		token              string
		expectedStatusCode int
	}{
		{
			name:               "PublicPathWithoutToken",
			path:               "/compare",
			method:             "POST",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "PublicOverviewPathWithoutToken",
			path:               "/overview/participation",
			method:             "GET",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "LoginWithoutToken",
			path:               "/admin/login",
			method:             "POST",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "AdminPathWithoutToken",
			path:               "/admin/refresh",
			method:             "POST",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "AdminPathValidToken",
			path:               "/admin/refresh",
			method:             "POST",
			token:              "valid-token",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "AdminPathInvalidToken",
			path:               "/admin/refresh",
			method:             "POST",
			token:              "invalid-token",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "OptionsPreflight",
			path:               "/admin/refresh",
			method:             "OPTIONS",
			expectedStatusCode: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, tc.path, nil)
			require.NoError(t, err)
			if tc.token != "" {
				req.Header.Add(AuthTokenHeader, tc.token)
			}

			rr := httptest.NewRecorder()
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			authMiddleware.AuthCheck()(handler).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatusCode, rr.Code)
		})
	}
}

func TestAuthMiddlewareHandler_AuthCheck_checkerError(t *testing.T) {
	checker := &checkerStub{err: errors.New("redis down")}
	authMiddleware := NewAuthMiddlewareHandler(checker)

	req, err := http.NewRequest("POST", "/admin/refresh", nil)
	require.NoError(t, err)
	req.Header.Add(AuthTokenHeader, "valid-token")

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	authMiddleware.AuthCheck()(handler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
