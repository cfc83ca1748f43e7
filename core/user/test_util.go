package user

import (
	"github.com/trezcool/colegio/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service that sends password reset emails synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{
		service: service{
			repo:     repo,
			mailSvc:  mailSvc,
			tokenGen: newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(email string) error {
	usr, err := svc.GetByEmail(email)
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
