package secrets

import (
	"context"
	"errors"
	"testing"

	"calllog-dashboard/internal/config"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	values  map[string]string
	err     error
	calls   []string
	decrypt []bool
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls = append(f.calls, *in.Name)
	f.decrypt = append(f.decrypt, in.WithDecryption != nil && *in.WithDecryption)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name}}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: &v, Type: types.ParameterTypeSecureString}}, nil
}

func TestGetParameter_Decrypts(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/calllog/jwt": "s3cret"}}
	p, err := NewParamStore(api)
	require.NoError(t, err)

	v, err := p.GetParameter(context.Background(), " /calllog/jwt ")
	require.NoError(t, err)
	require.Equal(t, "s3cret", v)
	require.Equal(t, []bool{true}, api.decrypt)
}

func TestGetParameter_Errors(t *testing.T) {
	_, err := NewParamStore(nil)
	require.ErrorContains(t, err, "must not be nil")

	_, err = (&ParamStore{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")

	p, _ := NewParamStore(&fakeAPI{})
	_, err = p.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")

	_, err = p.GetParameter(context.Background(), "missing")
	require.ErrorContains(t, err, "missing value")

	p, _ = NewParamStore(&fakeAPI{err: errors.New("AccessDenied")})
	_, err = p.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "AccessDenied")
}

func TestOverlay_ReplacesNamedSecretsOnly(t *testing.T) {
	api := &fakeAPI{values: map[string]string{
		"/calllog/webhook": "whsec\n",
		"/calllog/jwt":     "jwt-from-ssm",
	}}
	p, _ := NewParamStore(api)

	cfg := config.Config{
		Auth:    config.AuthConfig{JWTSecret: "env-jwt", DashboardPassword: "env-pw"},
		Webhook: config.WebhookConfig{Secret: "env-whsec"},
		SSM:     config.SSMConfig{WebhookSecretParam: "/calllog/webhook", JWTSecretParam: "/calllog/jwt"},
	}
	require.NoError(t, Overlay(context.Background(), p, &cfg))

	require.Equal(t, "whsec", cfg.Webhook.Secret)
	require.Equal(t, "jwt-from-ssm", cfg.Auth.JWTSecret)
	require.Equal(t, "env-pw", cfg.Auth.DashboardPassword)
	require.ElementsMatch(t, []string{"/calllog/webhook", "/calllog/jwt"}, api.calls)
}

func TestOverlay_ReportsEveryFailure(t *testing.T) {
	p, _ := NewParamStore(&fakeAPI{err: errors.New("throttled")})
	cfg := config.Config{
		Auth: config.AuthConfig{JWTSecret: "env-jwt"},
		SSM:  config.SSMConfig{DashboardPasswordParam: "/a", JWTSecretParam: "/b"},
	}

	err := Overlay(context.Background(), p, &cfg)
	require.ErrorContains(t, err, `"/a"`)
	require.ErrorContains(t, err, `"/b"`)
	require.Equal(t, "env-jwt", cfg.Auth.JWTSecret)
}
