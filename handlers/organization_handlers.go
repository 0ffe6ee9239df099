package handlers

import (
	"net/http"

	"saascore/billing"
	"saascore/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type CreateOrganizationRequest struct {
	Name            string                 `json:"name" binding:"required"`
	Slug            string                 `json:"slug" binding:"required"`
	Description     string                 `json:"description"`
	BillingInterval models.BillingInterval `json:"billing_interval"`
}

func (a *API) CreateOrganization(c *gin.Context) {
	ctx, span := a.startSpan(c, "CreateOrganization")
	defer span.End()

	var req CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		badRequest(c, err.Error())
		return
	}

	org, err := a.engine.ProvisionOrganization(ctx, principal(c), billing.ProvisionInput{
		Name:            req.Name,
		Slug:            req.Slug,
		Description:     req.Description,
		BillingInterval: req.BillingInterval,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (a *API) ListOrganizations(c *gin.Context) {
	memberships, err := a.engine.ListOrganizations(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memberships)
}

func (a *API) GetOrganizationBySlug(c *gin.Context) {
	ctx, span := a.startSpan(c, "GetOrganizationBySlug")
	defer span.End()
	span.SetAttributes(attribute.String("organization.slug", c.Param("slug")))

	org, err := a.engine.OrganizationBySlug(ctx, principal(c), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

type UpdateOrganizationRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (a *API) UpdateOrganization(c *gin.Context) {
	ctx, span := a.startSpan(c, "UpdateOrganization")
	defer span.End()

	orgID, ok := idParam(c, "orgId")
	if !ok {
		return
	}
	var req UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		badRequest(c, err.Error())
		return
	}

	org, err := a.engine.UpdateOrganization(ctx, principal(c), orgID, billing.UpdateOrganizationInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}
