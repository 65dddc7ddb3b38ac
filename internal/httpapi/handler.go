package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"rechargehub/pkg/db/pagination"
	"rechargehub/pkg/errutil"
	"rechargehub/pkg/middleware"
	"rechargehub/services/job"
	"rechargehub/services/offer"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler, NewRouter),
)

type Handler struct {
	offers      *offer.Service
	segments    *offer.SegmentComputer
	eligibility *offer.Eligibility
	engine      *offer.RedemptionEngine
	tasks       *offer.Task
	jobs        job.Service
	redis       *redis.Client
}

type HandlerParams struct {
	fx.In

	Offers      *offer.Service
	Segments    *offer.SegmentComputer
	Eligibility *offer.Eligibility
	Engine      *offer.RedemptionEngine
	Tasks       *offer.Task
	Jobs        job.Service
	Redis       *redis.Client `optional:"true"`
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		offers:      p.Offers,
		segments:    p.Segments,
		eligibility: p.Eligibility,
		engine:      p.Engine,
		tasks:       p.Tasks,
		jobs:        p.Jobs,
		redis:       p.Redis,
	}
}

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/offers", h.createOffer)
		v1.GET("/offers", h.listOffers)
		v1.GET("/offers/:offer_id", h.getOffer)
		v1.PATCH("/offers/:offer_id", h.updateOffer)
		v1.DELETE("/offers/:offer_id", h.deleteOffer)

		v1.POST("/offers/:offer_id/rules", h.addRule)
		v1.GET("/offers/:offer_id/rules", h.listRules)
		v1.DELETE("/offers/:offer_id/rules/:rule_id", h.removeRule)

		v1.POST("/offers/:offer_id/products", h.addProduct)
		v1.GET("/offers/:offer_id/products", h.listProducts)
		v1.DELETE("/offers/:offer_id/products/:offer_product_id", h.removeProduct)

		v1.POST("/offers/:offer_id/allowed-users", h.addAllowedUsers)
		v1.DELETE("/offers/:offer_id/allowed-users/:user_id", h.removeAllowedUser)
		v1.POST("/offers/:offer_id/allowed-roles", h.addAllowedRoles)
		v1.DELETE("/offers/:offer_id/allowed-roles/:role", h.removeAllowedRole)

		v1.POST("/offers/:offer_id/segment/compute", h.computeSegment)
		v1.GET("/offers/:offer_id/segment/members", h.segmentMembers)
		v1.GET("/offers/:offer_id/segment/preview", h.previewEligibility)
		v1.GET("/offers/:offer_id/eligibility/:user_id", h.checkEligibility)

		v1.POST("/offers/:offer_id/redemptions", h.redeem)
		v1.GET("/offers/:offer_id/redemptions", h.listRedemptions)
		v1.POST("/offers/:offer_id/redemptions/bulk", h.bulkRedeem)

		v1.GET("/jobs/:job_id", h.getJob)
	}

	return r
}

func (h *Handler) healthz(c *gin.Context) {
	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func abort(c *gin.Context, err error) {
	c.Error(offer.StatusError(err)) //nolint:errcheck
	c.Abort()
}

func pageFromQuery(c *gin.Context) pagination.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return pagination.Pagination{Page: page, Limit: limit}.Normalize()
}

// =========================================================
// Offers
// =========================================================

func (h *Handler) createOffer(c *gin.Context) {
	var req offer.CreateOfferParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	created, err := h.offers.CreateOffer(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listOffers(c *gin.Context) {
	offers, pageInfo, err := h.offers.ListOffers(c.Request.Context(), offer.ListOffersParams{
		Status:     offer.OfferStatus(c.Query("status")),
		Pagination: pageFromQuery(c),
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers, "page_info": pageInfo})
}

func (h *Handler) getOffer(c *gin.Context) {
	found, err := h.offers.GetOffer(c.Request.Context(), c.Param("offer_id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (h *Handler) updateOffer(c *gin.Context) {
	var req offer.UpdateOfferParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	updated, err := h.offers.UpdateOffer(c.Request.Context(), c.Param("offer_id"), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) deleteOffer(c *gin.Context) {
	if err := h.offers.DeleteOffer(c.Request.Context(), c.Param("offer_id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =========================================================
// Rules, products, allow-lists
// =========================================================

func (h *Handler) addRule(c *gin.Context) {
	var req offer.AddRuleParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	rule, err := h.offers.AddRule(c.Request.Context(), c.Param("offer_id"), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) listRules(c *gin.Context) {
	rules, err := h.offers.ListRules(c.Request.Context(), c.Param("offer_id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *Handler) removeRule(c *gin.Context) {
	if err := h.offers.RemoveRule(c.Request.Context(), c.Param("offer_id"), c.Param("rule_id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addProduct(c *gin.Context) {
	var req offer.AddProductParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	product, err := h.offers.AddProduct(c.Request.Context(), c.Param("offer_id"), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.offers.ListProducts(c.Request.Context(), c.Param("offer_id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) removeProduct(c *gin.Context) {
	if err := h.offers.RemoveProduct(c.Request.Context(), c.Param("offer_id"), c.Param("offer_product_id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addAllowedUsers(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	if err := h.offers.AddAllowedUsers(c.Request.Context(), c.Param("offer_id"), req.UserIDs); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) removeAllowedUser(c *gin.Context) {
	if err := h.offers.RemoveAllowedUser(c.Request.Context(), c.Param("offer_id"), c.Param("user_id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addAllowedRoles(c *gin.Context) {
	var req struct {
		Roles []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	if err := h.offers.AddAllowedRoles(c.Request.Context(), c.Param("offer_id"), req.Roles); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) removeAllowedRole(c *gin.Context) {
	if err := h.offers.RemoveAllowedRole(c.Request.Context(), c.Param("offer_id"), c.Param("role")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =========================================================
// Segments and eligibility
// =========================================================

func (h *Handler) computeSegment(c *gin.Context) {
	result, err := h.segments.ComputeSegment(c.Request.Context(), c.Param("offer_id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) segmentMembers(c *gin.Context) {
	members, pageInfo, err := h.segments.GetSegmentMembers(c.Request.Context(), c.Param("offer_id"), pageFromQuery(c))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "page_info": pageInfo})
}

func (h *Handler) previewEligibility(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	entries, err := h.segments.PreviewEligibility(c.Request.Context(), c.Param("offer_id"), limit)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) checkEligibility(c *gin.Context) {
	eligible, err := h.eligibility.IsEligible(c.Request.Context(), c.Param("offer_id"), c.Param("user_id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eligible": eligible})
}

// =========================================================
// Redemption
// =========================================================

type redeemRequest struct {
	UserID            string  `json:"user_id" binding:"required"`
	ProductID         *string `json:"product_id"`
	SupplierProductID *string `json:"supplier_product_id"`
	BasePrice         float64 `json:"base_price"`
}

func (h *Handler) redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	redemption, err := h.engine.Redeem(c.Request.Context(), offer.RedeemParams{
		OfferID: c.Param("offer_id"),
		UserID:  req.UserID,
		ProductRef: offer.ProductRef{
			ProductID:         req.ProductID,
			SupplierProductID: req.SupplierProductID,
		},
		BasePrice: req.BasePrice,
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, redemption)
}

func (h *Handler) listRedemptions(c *gin.Context) {
	params := offer.ListRedemptionsParams{
		UserID:     c.Query("user_id"),
		Pagination: pageFromQuery(c),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "since must be RFC3339"}})
			return
		}
		params.Since = &since
	}

	redemptions, pageInfo, err := h.offers.ListRedemptions(c.Request.Context(), c.Param("offer_id"), params)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": redemptions, "page_info": pageInfo})
}

func (h *Handler) bulkRedeem(c *gin.Context) {
	var req offer.BulkRedemptionPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}
	req.OfferID = c.Param("offer_id")

	j, err := h.tasks.EnqueueBulkRedemption(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, j)
}

// =========================================================
// Jobs
// =========================================================

func (h *Handler) getJob(c *gin.Context) {
	j, err := h.jobs.GetByID(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		abort(c, err)
		return
	}
	if j == nil {
		c.Error(errutil.NotFound("job not found", nil)) //nolint:errcheck
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, j)
}
