package middleware

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levante-framework/levante-dashboard-sub000/internal/model"
)

var testSecret = []byte("test-secret")

func mintToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func capturePermissions(got *model.Permissions, seen *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, *seen = model.PermissionsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_HS256MapsClaims(t *testing.T) {
	mw, err := AuthMiddleware(AuthConfig{Mode: AuthModeHS256, HS256Secret: testSecret, Audience: "dashboard"}, nil, nil)
	require.NoError(t, err)

	var perms model.Permissions
	var seen bool
	handler := mw(capturePermissions(&perms, &seen))

	token := mintToken(t, jwt.MapClaims{
		"sub": "admin-1",
		"aud": "dashboard",
		"exp": time.Now().Add(time.Hour).Unix(),
		"admin_orgs": map[string]any{
			"districts": []any{"D1"},
			"schools":   []any{"S1", "S2"},
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orgs/districts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, seen)
	assert.False(t, perms.SuperAdmin)
	assert.Equal(t, "admin-1", perms.Subject)
	require.NotNil(t, perms.AdminOrgs)
	assert.Equal(t, []string{"D1"}, perms.AdminOrgs.Districts)
	assert.Equal(t, []string{"S1", "S2"}, perms.AdminOrgs.Schools)
}

func TestAuthMiddleware_HS256Rejections(t *testing.T) {
	mw, err := AuthMiddleware(AuthConfig{Mode: AuthModeHS256, HS256Secret: testSecret}, nil, nil)
	require.NoError(t, err)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for rejected tokens")
	}))

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("other"))
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"wrong key", "Bearer " + wrongKey},
		{"expired", "Bearer " + mintToken(t, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"garbage", "Bearer not.a.token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/administrations", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestAuthMiddleware_ModeNone(t *testing.T) {
	for _, super := range []bool{false, true} {
		mw, err := AuthMiddleware(AuthConfig{Mode: AuthModeNone, AnonymousSuperAdmin: super}, nil, nil)
		require.NoError(t, err)
		var perms model.Permissions
		var seen bool
		rr := httptest.NewRecorder()
		mw(capturePermissions(&perms, &seen)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, seen)
		assert.Equal(t, super, perms.SuperAdmin)
	}
}

func TestAuthMiddleware_ConfigErrors(t *testing.T) {
	_, err := AuthMiddleware(AuthConfig{Mode: "ldap"}, nil, nil)
	assert.Error(t, err)
	_, err = AuthMiddleware(AuthConfig{Mode: AuthModeHS256}, nil, nil)
	assert.Error(t, err)
	_, err = AuthMiddleware(AuthConfig{Mode: AuthModeOIDC, Audience: "x"}, nil, nil)
	assert.Error(t, err)
	_, err = AuthMiddleware(AuthConfig{Mode: AuthModeOIDC, IssuerURL: "http://issuer.example", Audience: "x"}, nil, nil)
	assert.ErrorContains(t, err, "https")
}

func TestPermissionsFromClaims(t *testing.T) {
	cases := []struct {
		name   string
		claims map[string]interface{}
		super  bool
		orgs   *model.AdminOrgs
	}{
		{"bool flag", map[string]interface{}{"super_admin": true}, true, nil},
		{"string flag", map[string]interface{}{"super_admin": "true"}, true, nil},
		{"no claims", map[string]interface{}{}, false, nil},
		{
			"json string grants",
			map[string]interface{}{"admin_orgs": `{"classes":["C1"],"unknown":["X"]}`},
			false,
			&model.AdminOrgs{Classes: []string{"C1"}},
		},
		{
			"singular keys",
			map[string]interface{}{"admin_orgs": map[string]interface{}{"group": []interface{}{"G1"}}},
			false,
			&model.AdminOrgs{Groups: []string{"G1"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			perms := PermissionsFromClaims(tc.claims, DefaultSuperAdminClaim, DefaultAdminOrgsClaim)
			assert.Equal(t, tc.super, perms.SuperAdmin)
			assert.Equal(t, tc.orgs, perms.AdminOrgs)
		})
	}
}

func TestNewOIDCHTTPClient_TrustsProvidedCA(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	caPath := filepath.Join(t.TempDir(), "root_ca.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: tlsServer.Certificate().Raw})
	require.NoError(t, os.WriteFile(caPath, certPEM, 0o600))

	client, err := newOIDCHTTPClient(AuthConfig{CAFile: caPath})
	require.NoError(t, err)

	resp, err := client.Get(tlsServer.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestNewOIDCHTTPClient_FailsWithoutCAForSelfSignedServer(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	client, err := newOIDCHTTPClient(AuthConfig{})
	require.NoError(t, err)
	_, err = client.Get(tlsServer.URL)
	assert.Error(t, err)
}

func TestNewOIDCHTTPClient_RejectsInvalidCAFile(t *testing.T) {
	caPath := filepath.Join(t.TempDir(), "invalid_ca.crt")
	require.NoError(t, os.WriteFile(caPath, []byte("not a certificate"), 0o600))

	_, err := newOIDCHTTPClient(AuthConfig{CAFile: caPath})
	assert.Error(t, err)
}
