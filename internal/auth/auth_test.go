package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/doctrans/doctrans/internal/auth"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Suite")
}

func generateUserToken(signingKey *rsa.PrivateKey, username, orgID, role string, expiresIn time.Duration) string {
	claims := jwt.MapClaims{
		"preferred_username": username,
		"org_id":             orgID,
		"exp":                jwt.NewNumericDate(time.Now().Add(expiresIn)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
	if role != "" {
		claims["role"] = role
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	ss, err := token.SignedString(signingKey)
	Expect(err).To(BeNil())
	return ss
}

var _ = Describe("jwt authentication", func() {
	var (
		privateKey    *rsa.PrivateKey
		authenticator *auth.JWTAuthenticator
	)

	BeforeEach(func() {
		var err error
		privateKey, err = rsa.GenerateKey(rand.Reader, 2048)
		Expect(err).To(BeNil())

		authenticator, err = auth.NewJWTAuthenticatorWithKeyFn(func(t *jwt.Token) (any, error) {
			return &privateKey.PublicKey, nil
		})
		Expect(err).To(BeNil())
	})

	It("authenticates a valid token", func() {
		token := generateUserToken(privateKey, "alice", "acme", "", time.Hour)

		user, err := authenticator.Authenticate(token)
		Expect(err).To(BeNil())
		Expect(user.Username).To(Equal("alice"))
		Expect(user.Organization).To(Equal("acme"))
		Expect(user.Admin).To(BeFalse())
	})

	It("marks admin role holders", func() {
		token := generateUserToken(privateKey, "root", "internal", "admin", time.Hour)

		user, err := authenticator.Authenticate(token)
		Expect(err).To(BeNil())
		Expect(user.Admin).To(BeTrue())
	})

	It("rejects an expired token", func() {
		token := generateUserToken(privateKey, "alice", "acme", "", -time.Hour)

		_, err := authenticator.Authenticate(token)
		Expect(err).ToNot(BeNil())
	})

	It("rejects a token signed with another key", func() {
		otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
		Expect(err).To(BeNil())
		token := generateUserToken(otherKey, "alice", "acme", "", time.Hour)

		_, err = authenticator.Authenticate(token)
		Expect(err).ToNot(BeNil())
	})

	It("rejects a token without an org_id claim", func() {
		claims := jwt.MapClaims{
			"preferred_username": "alice",
			"exp":                jwt.NewNumericDate(time.Now().Add(time.Hour)),
			"iat":                jwt.NewNumericDate(time.Now()),
		}
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		ss, err := token.SignedString(privateKey)
		Expect(err).To(BeNil())

		_, err = authenticator.Authenticate(ss)
		Expect(err).ToNot(BeNil())
	})

	It("injects the user via middleware", func() {
		var seen auth.User
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = auth.MustHaveUser(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		ts := httptest.NewServer(authenticator.Authenticator(h))
		defer ts.Close()

		token := generateUserToken(privateKey, "alice", "acme", "", time.Hour)
		req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
		Expect(err).To(BeNil())
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))

		resp, err := http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(seen.Username).To(Equal("alice"))
	})

	It("rejects requests without a token", func() {
		ts := httptest.NewServer(authenticator.Authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
		defer ts.Close()

		resp, err := http.Get(ts.URL)
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})
})

var _ = Describe("api key authentication", func() {
	It("requires a configured key", func() {
		_, err := auth.NewAPIKeyAuthenticator("")
		Expect(err).ToNot(BeNil())
	})

	It("maps valid keys to the shared system principal", func() {
		authenticator, err := auth.NewAPIKeyAuthenticator("sekret")
		Expect(err).To(BeNil())

		var seen auth.User
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = auth.MustHaveUser(r.Context())
			w.WriteHeader(http.StatusOK)
		})
		ts := httptest.NewServer(authenticator.Authenticator(h))
		defer ts.Close()

		req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
		Expect(err).To(BeNil())
		req.Header.Add("X-Api-Key", "sekret")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(seen.Username).To(Equal(auth.SystemUsername))
		Expect(seen.Organization).To(Equal(auth.SystemOrganization))
		Expect(seen.Admin).To(BeFalse())
	})

	It("rejects wrong or missing keys", func() {
		authenticator, err := auth.NewAPIKeyAuthenticator("sekret")
		Expect(err).To(BeNil())

		ts := httptest.NewServer(authenticator.Authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
		defer ts.Close()

		resp, err := http.Get(ts.URL)
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

		req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
		Expect(err).To(BeNil())
		req.Header.Add("X-Api-Key", "wrong")
		resp, err = http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})
})

var _ = Describe("none authentication", func() {
	It("acts as a local admin", func() {
		authenticator, err := auth.NewNoneAuthenticator()
		Expect(err).To(BeNil())

		var seen auth.User
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = auth.MustHaveUser(r.Context())
			w.WriteHeader(http.StatusOK)
		})
		ts := httptest.NewServer(authenticator.Authenticator(h))
		defer ts.Close()

		resp, err := http.Get(ts.URL)
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(seen.Admin).To(BeTrue())
	})
})
