package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/dmitrijs2005/shopkeeper/internal/auth"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/dmitrijs2005/shopkeeper/internal/notifications"
	"github.com/dmitrijs2005/shopkeeper/internal/pos"
	"github.com/dmitrijs2005/shopkeeper/internal/session"
	"github.com/dmitrijs2005/shopkeeper/internal/syncengine"
)

type handlers struct {
	engine    *syncengine.Engine
	channel   *notifications.Channel
	auth      *auth.Service
	monitor   Connectivity
	log       logging.Logger
	done      <-chan struct{}
	heartbeat time.Duration
}

// per-request views scoped to the caller's store

func (h *handlers) eng(c *fiber.Ctx) *syncengine.Engine {
	return h.engine.ForSession(sessionOf(c))
}

func (h *handlers) notifications(c *fiber.Ctx) *notifications.Channel {
	return h.channel.ForSession(sessionOf(c))
}

func (h *handlers) pos(c *fiber.Ctx) *pos.Service {
	return pos.New(h.eng(c), h.notifications(c), h.log)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *handlers) login(c *fiber.Ctx) error {
	var in loginRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid body")
	}
	res, err := h.auth.Login(c.UserContext(), in.Username, in.Password)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *handlers) register(c *fiber.Ctx) error {
	var in auth.Registration
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid body")
	}
	res, err := h.auth.Register(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func collectionParam(c *fiber.Ctx) (models.Collection, error) {
	coll := models.Collection(c.Params("collection"))
	if !coll.Valid() {
		return "", fmt.Errorf("%w: unknown collection %q", common.ErrNotFound, coll)
	}
	return coll, nil
}

// redact strips secrets before documents leave the node.
func redact(coll models.Collection, docs ...models.Document) []models.Document {
	if coll != models.Users {
		return docs
	}
	out := make([]models.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Without("passwordHash")
	}
	return out
}

// visibleTo drops records of other stores. Users are looked up across
// stores so logins resolve, but never listed to another store.
func visibleTo(tenant string, docs []models.Document) []models.Document {
	out := docs[:0:0]
	for _, d := range docs {
		if d.VisibleTo(tenant) {
			out = append(out, d)
		}
	}
	return out
}

func bodyDocument(c *fiber.Ctx) (models.Document, error) {
	doc, err := models.ParseDocument(c.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return doc, nil
}

func (h *handlers) list(c *fiber.Ctx) error {
	coll, err := collectionParam(c)
	if err != nil {
		return err
	}
	docs, err := h.eng(c).GetAll(c.UserContext(), coll)
	if err != nil {
		return err
	}
	return c.JSON(redact(coll, docs...))
}

func (h *handlers) create(c *fiber.Ctx) error {
	coll, err := collectionParam(c)
	if err != nil {
		return err
	}
	doc, err := bodyDocument(c)
	if err != nil {
		return err
	}
	if coll == models.Users {
		if err := h.checkUserWrite(c, doc, ""); err != nil {
			return err
		}
	}
	out, err := h.eng(c).Add(c.UserContext(), coll, doc)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(redact(coll, out)[0])
}

// checkUserWrite guards writes to users: only admins manage accounts,
// usernames are unique across all stores and the role must be known. id
// is empty on create.
func (h *handlers) checkUserWrite(c *fiber.Ctx, doc models.Document, id string) error {
	if s := sessionOf(c); s == nil || s.Role != session.RoleAdmin {
		return fiber.ErrForbidden
	}

	if role, ok := doc["role"]; ok && role != session.RoleAdmin && role != session.RoleCashier {
		return fmt.Errorf("%w: unknown role %v", common.ErrValidation, role)
	}

	if raw, ok := doc["username"]; ok || id == "" {
		name, _ := raw.(string)
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%w: username is required", common.ErrValidation)
		}
		doc["username"] = name

		taken, err := h.eng(c).GetByIndex(c.UserContext(), models.Users, "username", name)
		switch {
		case errors.Is(err, common.ErrNotFound):
		case err != nil:
			return err
		case taken.ID() != id:
			return fmt.Errorf("%w: username %q is taken", common.ErrValidation, name)
		}
	}

	return hashUserPassword(doc)
}

// hashUserPassword replaces a plain "password" attribute with its hash.
func hashUserPassword(doc models.Document) error {
	pw := doc.String("password")
	delete(doc, "password")
	delete(doc, "passwordHash")
	if pw == "" {
		return nil
	}
	hash, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	doc["passwordHash"] = hash
	return nil
}

func (h *handlers) get(c *fiber.Ctx) error {
	coll, err := collectionParam(c)
	if err != nil {
		return err
	}
	doc, err := h.eng(c).Get(c.UserContext(), coll, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(redact(coll, doc)[0])
}

func (h *handlers) update(c *fiber.Ctx) error {
	coll, err := collectionParam(c)
	if err != nil {
		return err
	}
	doc, err := bodyDocument(c)
	if err != nil {
		return err
	}
	if coll == models.Users {
		if err := h.checkUserWrite(c, doc, c.Params("id")); err != nil {
			return err
		}
	}
	doc[models.AttrID] = c.Params("id")
	out, err := h.eng(c).Update(c.UserContext(), coll, doc)
	if err != nil {
		return err
	}
	return c.JSON(redact(coll, out)[0])
}

func (h *handlers) remove(c *fiber.Ctx) error {
	coll, err := collectionParam(c)
	if err != nil {
		return err
	}
	if err := h.eng(c).Remove(c.UserContext(), coll, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// indexValue reads the path value, typed by the optional ?type= query
// parameter (string, number or bool).
func indexValue(c *fiber.Ctx) (any, error) {
	raw := c.Params("value")
	switch c.Query("type", "string") {
	case "string":
		return raw, nil
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", common.ErrValidation, raw)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a bool", common.ErrValidation, raw)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown value type %q", common.ErrValidation, c.Query("type"))
	}
}

func (h *handlers) byIndex(c *fiber.Ctx) error {
	coll, err := collectionParam(c)
	if err != nil {
		return err
	}
	value, err := indexValue(c)
	if err != nil {
		return err
	}
	attr := c.Params("attr")

	if c.QueryBool("all") {
		docs, err := h.eng(c).GetAllByIndex(c.UserContext(), coll, attr, value)
		if err != nil {
			return err
		}
		return c.JSON(redact(coll, visibleTo(h.eng(c).Tenant(), docs)...))
	}

	doc, err := h.eng(c).GetByIndex(c.UserContext(), coll, attr, value)
	if err != nil {
		return err
	}
	if !doc.VisibleTo(h.eng(c).Tenant()) {
		return fmt.Errorf("%w: %s by %s", common.ErrNotFound, coll, attr)
	}
	return c.JSON(redact(coll, doc)[0])
}

func (h *handlers) sync(c *fiber.Ctx) error {
	report, err := h.eng(c).SyncPendingData(c.UserContext())
	if err != nil {
		h.log.Warn(c.UserContext(), "sync finished with errors", "error", err)
	}
	return c.JSON(fiber.Map{
		"report": report,
		"totals": report.Totals(),
	})
}

func (h *handlers) status(c *fiber.Ctx) error {
	s := sessionOf(c)
	return c.JSON(fiber.Map{
		"state":     h.monitor.State(),
		"cloudOnly": h.engine.CloudOnly(),
		"storeId":   h.eng(c).Tenant(),
		"userId":    s.UserID,
		"role":      s.Role,
	})
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

func (h *handlers) setConnectivity(c *fiber.Ctx) error {
	var in connectivityRequest
	if err := c.BodyParser(&in); err != nil || in.Online == nil {
		return badRequest(`body must be {"online": true|false}`)
	}
	h.monitor.SetOnline(c.UserContext(), *in.Online)
	return c.JSON(fiber.Map{"state": h.monitor.State()})
}

type notifyRequest struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

func (h *handlers) notify(c *fiber.Ctx) error {
	var in notifyRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid body")
	}
	if in.Type == "" || in.Title == "" {
		return fmt.Errorf("%w: type and title are required", common.ErrValidation)
	}
	doc, err := h.notifications(c).Notify(c.UserContext(), in.Type, in.Title, in.Message, in.Metadata)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (h *handlers) recentNotifications(c *fiber.Ctx) error {
	docs, err := h.notifications(c).Recent(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(docs)
}

func (h *handlers) checkout(c *fiber.Ctx) error {
	var in pos.Sale
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return badRequest("invalid body")
	}
	if in.CashierID == "" {
		in.CashierID = sessionOf(c).UserID
	}
	tx, err := h.pos(c).Checkout(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(tx)
}

type adjustRequest struct {
	ProductID string          `json:"productId"`
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason"`
}

func (h *handlers) adjustStock(c *fiber.Ctx) error {
	var in adjustRequest
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return badRequest("invalid body")
	}
	p, err := h.pos(c).AdjustStock(c.UserContext(), in.ProductID, in.Delta, in.Reason)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *handlers) recordPayment(c *fiber.Ctx) error {
	var in paymentRequest
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return badRequest("invalid body")
	}
	col, err := h.pos(c).RecordPayment(c.UserContext(), c.Params("id"), in.Amount)
	if err != nil {
		return err
	}
	return c.JSON(col)
}
