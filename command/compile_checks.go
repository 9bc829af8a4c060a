package command

import (
	"github.com/goliatone/go-certidigital/workflow"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[CreateCredentialsMessage]  = (*CreateCredentialsCommand)(nil)
	_ gocmd.Commander[CleanupCredentialsMessage] = (*CleanupCredentialsCommand)(nil)
	_ gocmd.Commander[IssueCredentialsMessage]   = (*IssueCredentialsCommand)(nil)
	_ gocmd.Commander[PollEmissionsMessage]      = (*PollEmissionsCommand)(nil)

	_ CredentialBuilder = (*workflow.Builder)(nil)
	_ CredentialIssuer  = (*workflow.Issuer)(nil)
)
