package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_registrations_total",
			Help: "Registration attempts by result",
		},
		[]string{"result"},
	)

	logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_logins_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	confirmationEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_confirmation_emails_total",
			Help: "Confirmation emails by delivery result",
		},
		[]string{"result"},
	)

	confirmationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_email_confirmations_total",
			Help: "Email confirmation attempts by result",
		},
		[]string{"result"},
	)

	expiredTokensDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accounts_expired_confirmation_tokens_deleted_total",
			Help: "Expired confirmation tokens removed by the collector",
		},
	)
)
