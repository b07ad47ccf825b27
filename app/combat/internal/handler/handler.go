// Package handler 战斗服务的 HTTP 适配层，鉴权由网关完成
package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lk2023060901/underworld/app/combat/internal/errcode"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/service"
	"github.com/lk2023060901/underworld/pkg/logger"
	"github.com/lk2023060901/underworld/pkg/web"
	"github.com/lk2023060901/underworld/pkg/web/errors"
)

// HeaderUserID 网关注入的当前角色 ID
const HeaderUserID = "X-User-ID"

const userIDKey = "combat.user_id"

// 战斗服务业务码
const (
	CodeSelfTarget         = 41001
	CodeConfined           = 41002
	CodeLevelTooLow        = 41003
	CodeInsufficientEnergy = 41004
	CodeInsufficientFunds  = 41005
	CodeNotConfined        = 41006
	CodeCrimeDisabled      = 41007
)

// Fighter 战斗
type Fighter interface {
	RunFight(ctx context.Context, attackerID, defenderID int64) (*service.FightOutcome, error)
	History(ctx context.Context, userID int64, limit int) ([]*model.FightRecord, error)
}

// CrimeRunner 犯罪
type CrimeRunner interface {
	ExecuteCrime(ctx context.Context, userID, crimeID int64) (*service.CrimeOutcome, error)
	History(ctx context.Context, userID int64, limit int) ([]*model.CrimeLog, error)
}

// Confiner 监禁
type Confiner interface {
	Status(ctx context.Context, userID int64, kind model.ConfinementKind) (*service.ConfinementStatus, error)
	PayEarlyRelease(ctx context.Context, userID int64, kind model.ConfinementKind) (*service.ReleaseResult, error)
}

// CrimeLister 犯罪目录
type CrimeLister interface {
	List() []*model.CrimeDefinition
}

// Handler HTTP 处理器
type Handler struct {
	fights      Fighter
	crimes      CrimeRunner
	confinement Confiner
	catalog     CrimeLister
	logger      logger.Logger
}

// NewHandler 创建处理器
func NewHandler(fights Fighter, crimes CrimeRunner, confinement Confiner, catalog CrimeLister, l logger.Logger) *Handler {
	return &Handler{
		fights:      fights,
		crimes:      crimes,
		confinement: confinement,
		catalog:     catalog,
		logger:      l.Named("handler.combat"),
	}
}

// Register 注册路由
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1", h.requireUser)

	v1.POST("/fights", h.RunFight)
	v1.GET("/fights", h.FightHistory)

	v1.GET("/crimes", h.ListCrimes)
	v1.GET("/crimes/history", h.CrimeHistory)
	v1.POST("/crimes/:id", h.ExecuteCrime)

	v1.GET("/confinement/:kind", h.ConfinementStatus)
	v1.POST("/confinement/:kind/release", h.PayEarlyRelease)
}

// requireUser 读取网关注入的角色 ID
func (h *Handler) requireUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
	if err != nil || id <= 0 {
		web.Fail(c, errors.CodeUnAuthorized, "unauthorized", "missing or invalid "+HeaderUserID, nil)
		return
	}
	c.Set(userIDKey, id)
	c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), id))
	c.Next()
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

type fightRequest struct {
	DefenderID int64 `json:"defender_id" binding:"required,gt=0"`
}

type historyQuery struct {
	Limit int `form:"limit" binding:"omitempty,gte=1,lte=100"`
}

type crimeURI struct {
	ID int64 `uri:"id" binding:"required,gt=0"`
}

type kindURI struct {
	Kind string `uri:"kind" binding:"required,oneof=jail hospital"`
}

// RunFight POST /v1/fights
func (h *Handler) RunFight(c *gin.Context) {
	var req fightRequest
	if !web.BindAndValidate(c, &req) {
		return
	}
	out, err := h.fights.RunFight(c.Request.Context(), currentUser(c), req.DefenderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	web.Success(c, out)
}

// FightHistory GET /v1/fights
func (h *Handler) FightHistory(c *gin.Context) {
	var q historyQuery
	if !web.BindAndValidate(c, &q) {
		return
	}
	fights, err := h.fights.History(c.Request.Context(), currentUser(c), q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	web.Success(c, fights)
}

// ListCrimes GET /v1/crimes
func (h *Handler) ListCrimes(c *gin.Context) {
	web.Success(c, h.catalog.List())
}

// ExecuteCrime POST /v1/crimes/:id
func (h *Handler) ExecuteCrime(c *gin.Context) {
	var uri crimeURI
	if !web.BindURI(c, &uri) {
		return
	}
	out, err := h.crimes.ExecuteCrime(c.Request.Context(), currentUser(c), uri.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	web.Success(c, out)
}

// CrimeHistory GET /v1/crimes/history
func (h *Handler) CrimeHistory(c *gin.Context) {
	var q historyQuery
	if !web.BindAndValidate(c, &q) {
		return
	}
	logs, err := h.crimes.History(c.Request.Context(), currentUser(c), q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	web.Success(c, logs)
}

// ConfinementStatus GET /v1/confinement/:kind
func (h *Handler) ConfinementStatus(c *gin.Context) {
	var uri kindURI
	if !web.BindURI(c, &uri) {
		return
	}
	st, err := h.confinement.Status(c.Request.Context(), currentUser(c), model.ConfinementKind(uri.Kind))
	if err != nil {
		h.fail(c, err)
		return
	}
	web.Success(c, st)
}

// PayEarlyRelease POST /v1/confinement/:kind/release
func (h *Handler) PayEarlyRelease(c *gin.Context) {
	var uri kindURI
	if !web.BindURI(c, &uri) {
		return
	}
	res, err := h.confinement.PayEarlyRelease(c.Request.Context(), currentUser(c), model.ConfinementKind(uri.Kind))
	if err != nil {
		h.fail(c, err)
		return
	}
	web.Success(c, res)
}

// fail 业务错误按原因映射业务码，其余错误不向调用方暴露细节
func (h *Handler) fail(c *gin.Context, err error) {
	reason := errcode.ReasonOf(err)
	code := codeOf(reason)

	e, ok := errcode.As(err)
	if !ok || reason == errcode.ReasonInternal {
		h.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		web.Fail(c, code, string(errcode.ReasonInternal), "internal error", nil)
		return
	}

	var data any
	if len(e.Meta) > 0 {
		data = e.Meta
	}
	web.Fail(c, code, string(reason), e.Message, data)
}

func codeOf(reason errcode.Reason) int {
	switch reason {
	case errcode.ReasonInvalidArgument:
		return errors.CodeInvalidParams
	case errcode.ReasonSelfTarget:
		return CodeSelfTarget
	case errcode.ReasonNotFound:
		return errors.CodeNotFound
	case errcode.ReasonConfined:
		return CodeConfined
	case errcode.ReasonBusy:
		return errors.CodeConflict
	case errcode.ReasonLevelTooLow:
		return CodeLevelTooLow
	case errcode.ReasonInsufficientEnergy:
		return CodeInsufficientEnergy
	case errcode.ReasonOnCooldown:
		return errors.CodeRateLimited
	case errcode.ReasonInsufficientFunds:
		return CodeInsufficientFunds
	case errcode.ReasonNotConfined:
		return CodeNotConfined
	case errcode.ReasonCrimeDisabled:
		return CodeCrimeDisabled
	case errcode.ReasonTransientFailure:
		return errors.CodeUnavailable
	default:
		return errors.CodeInternalError
	}
}
