package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/quizpack/internal/filestore"
	"github.com/xxxsen/quizpack/internal/model"
	"github.com/xxxsen/quizpack/internal/pkg/errcode"
	"github.com/xxxsen/quizpack/internal/pkg/response"
	"github.com/xxxsen/quizpack/internal/service"
)

type StructureAPI interface {
	Get(ctx context.Context, userID, packageID string) (*model.Package, error)
	AddTour(ctx context.Context, userID, packageID string, in service.TourInput, position int) (*model.Package, error)
	RemoveTour(ctx context.Context, userID, packageID, tourID string) (*model.Package, error)
	MoveTour(ctx context.Context, userID, packageID, tourID string, position int) (*model.Package, error)
	SetWarmup(ctx context.Context, userID, packageID, tourID string, on bool) (*model.Package, error)
	SetNumberingMode(ctx context.Context, userID, packageID, mode string) (*model.Package, error)
	AddQuestion(ctx context.Context, userID, packageID, tourID, blockID string, in service.QuestionInput, position int) (*model.Package, error)
	RemoveQuestion(ctx context.Context, userID, packageID, questionID string) (*model.Package, error)
	MoveQuestion(ctx context.Context, userID, packageID, questionID, toTourID, toBlockID string, position int) (*model.Package, error)
}

type PackageHandler struct {
	packages StructureAPI
	media    filestore.Store
}

// NewPackageHandler serves package trees. media may be nil, in which case no
// media links are resolved.
func NewPackageHandler(packages StructureAPI, media filestore.Store) *PackageHandler {
	return &PackageHandler{packages: packages, media: media}
}

type packageView struct {
	*model.Package
	MediaURLs map[string]string `json:"media_urls"`
}

type addTourRequest struct {
	service.TourInput
	Position *int `json:"position"`
}

type moveRequest struct {
	Position *int `json:"position"`
}

type warmupRequest struct {
	IsWarmup bool `json:"is_warmup"`
}

type numberingRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type addQuestionRequest struct {
	service.QuestionInput
	BlockID  string `json:"block_id"`
	Position *int   `json:"position"`
}

type moveQuestionRequest struct {
	TourID   string `json:"tour_id" binding:"required"`
	BlockID  string `json:"block_id"`
	Position *int   `json:"position"`
}

func (h *PackageHandler) Get(c *gin.Context) {
	pkg, err := h.packages.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	h.reply(c, pkg, err)
}

func (h *PackageHandler) AddTour(c *gin.Context) {
	var req addTourRequest
	if !bind(c, &req) {
		return
	}
	pkg, err := h.packages.AddTour(c.Request.Context(), getUserID(c), c.Param("id"), req.TourInput, position(req.Position))
	h.reply(c, pkg, err)
}

func (h *PackageHandler) RemoveTour(c *gin.Context) {
	pkg, err := h.packages.RemoveTour(c.Request.Context(), getUserID(c), c.Param("id"), c.Param("tour_id"))
	h.reply(c, pkg, err)
}

func (h *PackageHandler) MoveTour(c *gin.Context) {
	var req moveRequest
	if !bind(c, &req) {
		return
	}
	pkg, err := h.packages.MoveTour(c.Request.Context(), getUserID(c), c.Param("id"), c.Param("tour_id"), position(req.Position))
	h.reply(c, pkg, err)
}

func (h *PackageHandler) SetWarmup(c *gin.Context) {
	var req warmupRequest
	if !bind(c, &req) {
		return
	}
	pkg, err := h.packages.SetWarmup(c.Request.Context(), getUserID(c), c.Param("id"), c.Param("tour_id"), req.IsWarmup)
	h.reply(c, pkg, err)
}

func (h *PackageHandler) SetNumbering(c *gin.Context) {
	var req numberingRequest
	if !bind(c, &req) {
		return
	}
	pkg, err := h.packages.SetNumberingMode(c.Request.Context(), getUserID(c), c.Param("id"), req.Mode)
	h.reply(c, pkg, err)
}

func (h *PackageHandler) AddQuestion(c *gin.Context) {
	var req addQuestionRequest
	if !bind(c, &req) {
		return
	}
	pkg, err := h.packages.AddQuestion(c.Request.Context(), getUserID(c), c.Param("id"), c.Param("tour_id"), req.BlockID, req.QuestionInput, position(req.Position))
	h.reply(c, pkg, err)
}

func (h *PackageHandler) RemoveQuestion(c *gin.Context) {
	pkg, err := h.packages.RemoveQuestion(c.Request.Context(), getUserID(c), c.Param("id"), c.Param("question_id"))
	h.reply(c, pkg, err)
}

func (h *PackageHandler) MoveQuestion(c *gin.Context) {
	var req moveQuestionRequest
	if !bind(c, &req) {
		return
	}
	pkg, err := h.packages.MoveQuestion(c.Request.Context(), getUserID(c), c.Param("id"), c.Param("question_id"), req.TourID, req.BlockID, position(req.Position))
	h.reply(c, pkg, err)
}

func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request")
		return false
	}
	return true
}

func (h *PackageHandler) reply(c *gin.Context, pkg *model.Package, err error) {
	if err != nil {
		handleError(c, err)
		return
	}
	view := packageView{Package: pkg, MediaURLs: map[string]string{}}
	if h.media != nil {
		base := requestBaseURL(c)
		add := func(keys []string) {
			for _, key := range keys {
				if isRemote(key) {
					view.MediaURLs[key] = key
					continue
				}
				view.MediaURLs[key] = h.media.URL(key, base)
			}
		}
		add(pkg.Media)
		for i := range pkg.Tours {
			pkg.Tours[i].EachQuestion(func(q *model.Question) { add(q.Media) })
		}
	}
	response.Success(c, view)
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func requestBaseURL(c *gin.Context) string {
	proto := c.GetHeader("X-Forwarded-Proto")
	if proto == "" {
		if c.Request.TLS != nil {
			proto = "https"
		} else {
			proto = "http"
		}
	}
	host := c.GetHeader("X-Forwarded-Host")
	if host == "" {
		host = c.Request.Host
	}
	return proto + "://" + host
}
