package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vcwallet/internal/issuance/client"
	"vcwallet/internal/issuance/handler/mocks"
	"vcwallet/internal/issuance/models"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type IssuanceHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
}

func TestIssuanceHandlerSuite(t *testing.T) {
	suite.Run(t, new(IssuanceHandlerSuite))
}

const holder = domain.Identity("holder-1")

func (s *IssuanceHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)

	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
}

func (s *IssuanceHandlerSuite) do(req *http.Request) *http.Response {
	rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, holder.String()))
	return rr.Result()
}

func (s *IssuanceHandlerSuite) TestInit() {
	s.Run("authorization code flow returns the redirect", func() {
		s.service.EXPECT().
			StartIssuance(gomock.Any(), holder, models.StartRequest{LegalPersonDID: "did:ebsi:issuer"}).
			Return(&models.StartResult{RedirectTo: "https://issuer.example/authorize?x=1"}, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/communication/init", map[string]string{"legal_person_did": " did:ebsi:issuer "})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, holder.String()))

		s.Equal(http.StatusOK, rr.Code)
		body := testutil.DecodeJSON[map[string]any](s.T(), rr)
		s.Equal(map[string]any{"redirect_to": "https://issuer.example/authorize?x=1"}, body)
	})

	s.Run("pre-authorized flow asks for a pin", func() {
		s.service.EXPECT().
			StartIssuance(gomock.Any(), holder, models.StartRequest{OfferURL: "openid-credential-offer://?credential_offer=x"}).
			Return(&models.StartResult{PreAuth: true, AskForPin: true}, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/communication/init", map[string]string{"url": "openid-credential-offer://?credential_offer=x"})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, holder.String()))

		s.Equal(http.StatusOK, rr.Code)
		body := testutil.DecodeJSON[map[string]any](s.T(), rr)
		s.Equal(map[string]any{"preauth": true, "ask_for_pin": true}, body)
	})

	s.Run("pre-authorized flow without pin still reports ask_for_pin", func() {
		s.service.EXPECT().StartIssuance(gomock.Any(), holder, gomock.Any()).
			Return(&models.StartResult{PreAuth: true}, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/communication/init", map[string]string{"url": "offer"})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, holder.String()))

		body := testutil.DecodeJSON[map[string]any](s.T(), rr)
		s.Equal(false, body["ask_for_pin"])
	})

	s.Run("unknown legal person", func() {
		s.service.EXPECT().StartIssuance(gomock.Any(), holder, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "legal person not found"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/communication/init", map[string]string{"legal_person_did": "did:x"})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, holder.String()))
		testutil.AssertError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	s.Run("malformed body", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/communication/init")
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, holder.String()))
		testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})
}

func (s *IssuanceHandlerSuite) TestPreAuthorized() {
	s.Run("accepted", func() {
		s.service.EXPECT().ResumePreAuthorized(gomock.Any(), holder, "1234").Return(nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/communication/preauthorized", map[string]string{"user_pin": "1234"})
		resp := s.do(req)
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("invalid_request spreads the issuer body", func() {
		upstream := &client.UpstreamError{
			URL:        "https://issuer.example/token",
			StatusCode: http.StatusBadRequest,
			Body:       []byte(`{"error":"invalid_request","error_description":"wrong pin","attempts_left":2}`),
		}
		s.service.EXPECT().ResumePreAuthorized(gomock.Any(), holder, "0000").
			Return(dErrors.Wrap(upstream, dErrors.CodeInvalidRequest, "issuer rejected the token request"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/communication/preauthorized", map[string]string{"user_pin": "0000"})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, holder.String()))

		s.Equal(http.StatusBadRequest, rr.Code)
		body := testutil.DecodeJSON[map[string]any](s.T(), rr)
		s.Equal("invalid_request", body["error"])
		s.Equal("wrong pin", body["error_description"])
		s.Equal(float64(2), body["attempts_left"])
	})

	s.Run("other failures are opaque", func() {
		s.service.EXPECT().ResumePreAuthorized(gomock.Any(), holder, "1234").
			Return(dErrors.Wrap(errors.New("connection refused"), dErrors.CodeUpstream, "token request failed"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/communication/preauthorized", map[string]string{"user_pin": "1234"})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, holder.String()))
		testutil.AssertError(s.T(), rr, http.StatusBadGateway, string(dErrors.CodeUpstream))
	})
}

func (s *IssuanceHandlerSuite) TestHandleCallback() {
	s.Run("accepted", func() {
		s.service.EXPECT().HandleAuthorizationCallback(gomock.Any(), holder, "https://wallet.example/cb?code=c1").Return(nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/communication/handle", map[string]string{"url": "https://wallet.example/cb?code=c1"})
		resp := s.do(req)
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("missing url", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/communication/handle", map[string]string{})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, holder.String()))
		testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("missing code", func() {
		s.service.EXPECT().HandleAuthorizationCallback(gomock.Any(), holder, gomock.Any()).
			Return(dErrors.New(dErrors.CodeValidation, "callback url has no code"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/communication/handle", map[string]string{"url": "https://wallet.example/cb"})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, holder.String()))
		testutil.AssertError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}

func (s *IssuanceHandlerSuite) TestIssuerState() {
	s.service.EXPECT().IssuerState(gomock.Any(), holder).Return("state-1", nil)

	rr := testutil.DoRequest(s.router, testutil.WithIdentity(testutil.NewRequest(s.T(), http.MethodGet, "/communication/issuer-state"), holder.String()))
	s.Equal(http.StatusOK, rr.Code)
	s.Equal(map[string]any{"issuer_state": "state-1"}, testutil.DecodeJSON[map[string]any](s.T(), rr))

	s.service.EXPECT().IssuerState(gomock.Any(), holder).Return("", dErrors.New(dErrors.CodeNotFound, "no issuance session"))
	rr = testutil.DoRequest(s.router, testutil.WithIdentity(testutil.NewRequest(s.T(), http.MethodGet, "/communication/issuer-state"), holder.String()))
	testutil.AssertError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func (s *IssuanceHandlerSuite) TestAvailableCredentials() {
	s.service.EXPECT().AvailableCredentials(gomock.Any(), "did:ebsi:issuer").
		Return([]models.AvailableCredential{{ID: "PID_JWT", DisplayName: "Person ID"}}, nil)

	rr := testutil.DoRequest(s.router, testutil.WithIdentity(testutil.NewRequest(s.T(), http.MethodGet, "/legal-persons/did:ebsi:issuer/credentials"), holder.String()))
	s.Equal(http.StatusOK, rr.Code)

	body := testutil.DecodeJSON[struct {
		Supported []models.AvailableCredential `json:"supported_credentials"`
	}](s.T(), rr)
	s.Equal([]models.AvailableCredential{{ID: "PID_JWT", DisplayName: "Person ID"}}, body.Supported)

	s.Run("empty list is an array", func() {
		s.service.EXPECT().AvailableCredentials(gomock.Any(), "did:ebsi:empty").Return(nil, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/legal-persons/did:ebsi:empty/credentials"))
		s.JSONEq(`{"supported_credentials":[]}`, rr.Body.String())
	})
}
