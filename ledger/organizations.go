package ledger

import (
	"saascore/models"
)

func (t *Tx) CreateOrganization(org *models.Organization) error {
	return translate(t.db.Create(org).Error)
}

func (t *Tx) OrganizationByID(id uint) (*models.Organization, error) {
	var org models.Organization
	if err := t.db.First(&org, id).Error; err != nil {
		return nil, translate(err)
	}
	return &org, nil
}

// OrganizationBySlug loads the organization with its subscription and members.
func (t *Tx) OrganizationBySlug(slug string) (*models.Organization, error) {
	var org models.Organization
	err := t.db.Preload("Subscription").Preload("Memberships.User").
		Where("slug = ?", slug).First(&org).Error
	if err != nil {
		return nil, translate(err)
	}
	return &org, nil
}

// SlugTaken also counts soft-deleted organizations, which still hold the unique index.
func (t *Tx) SlugTaken(slug string) (bool, error) {
	var n int64
	if err := t.db.Unscoped().Model(&models.Organization{}).Where("slug = ?", slug).Count(&n).Error; err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (t *Tx) UpdateOrganization(orgID uint, fields map[string]interface{}) error {
	return conditional(t.db.Model(&models.Organization{}).Where("id = ?", orgID).Updates(fields))
}

// OrganizationsForUser lists the caller's memberships with their organization and subscription.
func (t *Tx) OrganizationsForUser(userID uint) ([]models.Membership, error) {
	var ms []models.Membership
	err := newestFirst(t.db.Preload("Organization.Subscription").Where("user_id = ?", userID)).Find(&ms).Error
	return ms, translate(err)
}

func (t *Tx) CreateMembership(m *models.Membership) error {
	return translate(t.db.Create(m).Error)
}

func (t *Tx) MembershipFor(userID, orgID uint) (*models.Membership, error) {
	var m models.Membership
	if err := t.db.Where("user_id = ? AND organization_id = ?", userID, orgID).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// MembersWithRole returns the organization's members holding any of roles, with their user loaded.
func (t *Tx) MembersWithRole(orgID uint, roles ...models.Role) ([]models.Membership, error) {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	var ms []models.Membership
	err := t.db.Preload("User").Where("organization_id = ? AND role IN ?", orgID, names).
		Order("id ASC").Find(&ms).Error
	return ms, translate(err)
}
