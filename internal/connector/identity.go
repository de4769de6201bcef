package connector

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/identitytoolkit/v3"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

const identityPageSize = 1000

// Keys of the records the identity connector emits.
const (
	IdentityKeyEmail         = "email"
	IdentityKeyFirstName     = "firstName"
	IdentityKeyLastName      = "lastName"
	IdentityKeyDisplayName   = "displayName"
	IdentityKeyPhoneNumber   = "phoneNumber"
	IdentityKeyDisabled      = "disabled"
	IdentityKeyEmailVerified = "emailVerified"
	IdentityKeyUID           = "uid"
)

// IdentityConnector lists the user accounts of a Firebase-style identity project.
type IdentityConnector struct {
	httpClient *http.Client
	newService func(ctx context.Context, cfg models.IdentityConfig) (*identitytoolkit.Service, error)
}

func NewIdentityConnector(httpClient *http.Client) *IdentityConnector {
	c := &IdentityConnector{httpClient: httpClient}
	c.newService = c.serviceAccountService
	return c
}

func (c *IdentityConnector) serviceAccountService(ctx context.Context, cfg models.IdentityConfig) (*identitytoolkit.Service, error) {
	opts, err := serviceAccountOptions(ctx, c.httpClient, cfg.ServiceAccount, cfg.Endpoint, identitytoolkit.CloudPlatformScope)
	if err != nil {
		return nil, err
	}
	return identitytoolkit.NewService(ctx, opts...)
}

func (c *IdentityConnector) Fetch(ctx context.Context, cfg models.ProviderConfig, _ models.SourceRef) (Records, error) {
	ic, ok := cfg.(models.IdentityConfig)
	if !ok {
		return nil, syncerr.Configurationf("identity connector got %s config", cfg.Provider())
	}

	svc, err := c.newService(ctx, ic)
	if err != nil {
		return nil, err
	}

	return newPager(func(ctx context.Context, cursor string) ([]Record, string, int, error) {
		resp, err := svc.Relyingparty.DownloadAccount(&identitytoolkit.IdentitytoolkitRelyingpartyDownloadAccountRequest{
			MaxResults:      identityPageSize,
			NextPageToken:   cursor,
			TargetProjectId: ic.ProjectID,
		}).Context(ctx).Do()
		if err != nil {
			return nil, "", -1, googleTransient(models.ProviderIdentity, fmt.Errorf("download accounts: %w", err))
		}

		records := make([]Record, 0, len(resp.Users))
		for _, u := range resp.Users {
			records = append(records, userRecord(u))
		}

		next := resp.NextPageToken
		if len(resp.Users) == 0 {
			next = ""
		}
		return records, next, -1, nil
	}), nil
}

func userRecord(u *identitytoolkit.UserInfo) Record {
	first, last := splitDisplayName(u.DisplayName)
	return Record{
		IdentityKeyEmail:         u.Email,
		IdentityKeyFirstName:     first,
		IdentityKeyLastName:      last,
		IdentityKeyDisplayName:   u.DisplayName,
		IdentityKeyPhoneNumber:   u.PhoneNumber,
		IdentityKeyDisabled:      u.Disabled,
		IdentityKeyEmailVerified: u.EmailVerified,
		IdentityKeyUID:           u.LocalId,
	}
}

// splitDisplayName splits on the first space: "Ada King Lovelace" -> "Ada", "King Lovelace".
func splitDisplayName(name string) (string, string) {
	name = strings.TrimSpace(name)
	first, last, _ := strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}
