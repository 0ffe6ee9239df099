package ledger

import (
	"context"
	"strings"

	"saascore/models"
)

func (t *Tx) CreateUser(u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return translate(t.db.Create(u).Error)
}

func (t *Tx) UserByID(id uint) (*models.User, error) {
	var u models.User
	if err := t.db.First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (t *Tx) UserByEmail(email string) (*models.User, error) {
	var u models.User
	if err := t.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (t *Tx) CreateEmailLog(l *models.EmailLog) error {
	return translate(t.db.Create(l).Error)
}

// BillingContacts returns the emails of the organization's owners and admins.
func (s *Store) BillingContacts(ctx context.Context, orgID uint) ([]string, error) {
	ms, err := s.Read(ctx).MembersWithRole(orgID, models.RoleOwner, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(ms))
	for _, m := range ms {
		if m.User != nil && m.User.Email != "" {
			emails = append(emails, m.User.Email)
		}
	}
	return emails, nil
}

func (s *Store) RecordEmail(ctx context.Context, entry *models.EmailLog) error {
	return s.Read(ctx).CreateEmailLog(entry)
}
