package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.Verify != nil
}

func (s Service) Create(ctx context.Context, userID string) CreateResult {
	return RunCreate(ctx, userID, s.deps.Create)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, accessToken, refreshToken string) ValidateResult {
	deps := s.deps.Validate
	if deps.Refresh == nil {
		deps.Refresh = s.Refresh
	}
	return RunValidate(ctx, accessToken, refreshToken, deps)
}

func (s Service) Revoke(ctx context.Context, sessionID string) RevokeResult {
	return RunRevoke(ctx, sessionID, s.deps.Revoke)
}
