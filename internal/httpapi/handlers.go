package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dshills/sketchlink/internal/engine/history"
	"github.com/dshills/sketchlink/internal/session"
	"github.com/dshills/sketchlink/internal/share"
)

const sessionKey = "session"

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type textRequest struct {
	Text *string `json:"text" binding:"required"`
}

type documentRequest struct {
	Name string `json:"name"`
	Seed string `json:"seed"`
}

type decodeRequest struct {
	Token string `json:"token"`
	Link  string `json:"link"`
}

type shareResponse struct {
	Token      string `json:"token"`
	Link       string `json:"link"`
	RawBytes   int    `json:"rawBytes"`
	TokenBytes int    `json:"tokenBytes"`
}

type stateResponse struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	State history.State `json:"state"`
}

type moveResponse struct {
	Moved bool          `json:"moved"`
	State history.State `json:"state"`
}

// fail writes the status and code that match err.
func fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, share.ErrNoFragment):
		status, code = http.StatusBadRequest, "no_fragment"
	case errors.Is(err, share.ErrTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, share.ErrCorruptFragment):
		status, code = http.StatusUnprocessableEntity, "corrupt_fragment"
	case errors.Is(err, session.ErrSessionNotFound):
		status, code = http.StatusNotFound, "session_not_found"
	case errors.Is(err, session.ErrTooManySessions):
		status, code = http.StatusTooManyRequests, "too_many_sessions"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: err.Error(), Code: "bad_request"})
}

func (s *Server) shareOf(text string) (shareResponse, error) {
	link, err := s.codec.Link(s.baseURL, text)
	if err != nil {
		return shareResponse{}, err
	}
	token := link[strings.LastIndexByte(link, '#')+1:]
	return shareResponse{
		Token:      token,
		Link:       link,
		RawBytes:   len(text),
		TokenBytes: len(token),
	}, nil
}

// POST /v1/share {text}
func (s *Server) encodeShare(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := s.shareOf(*req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /v1/share/decode {token} or {link}
func (s *Server) decodeShare(c *gin.Context) {
	var req decodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var (
		text string
		err  error
	)
	if req.Link != "" {
		text, err = s.codec.ParseLink(req.Link)
	} else {
		text, err = s.codec.Decode(req.Token)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

// loadSession resolves :id for the routes below it.
func (s *Server) loadSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func current(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

func stateOf(sess *session.Session) stateResponse {
	return stateResponse{ID: sess.ID, Name: sess.Name(), State: sess.History().State()}
}

// POST /v1/sessions {name, seed}
func (s *Server) openSession(c *gin.Context) {
	var req documentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	sess, err := s.sessions.Open(req.Name, req.Seed)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, stateOf(sess))
}

// GET /v1/sessions
func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.List()})
}

// GET /v1/sessions/:id
func (s *Server) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, stateOf(current(c)))
}

// DELETE /v1/sessions/:id
func (s *Server) closeSession(c *gin.Context) {
	if err := s.sessions.Close(current(c).ID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PUT /v1/sessions/:id/text {text}
func (s *Server) typeText(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess := current(c)
	sess.History().TextChanged(*req.Text)
	c.JSON(http.StatusAccepted, stateOf(sess))
}

// POST /v1/sessions/:id/rewrite {text}
func (s *Server) rewrite(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess := current(c)
	sess.History().ExternalRewrite(*req.Text)
	c.JSON(http.StatusOK, stateOf(sess))
}

func (s *Server) undo(c *gin.Context) {
	h := current(c).History()
	moved := h.Undo()
	c.JSON(http.StatusOK, moveResponse{Moved: moved, State: h.State()})
}

func (s *Server) redo(c *gin.Context) {
	h := current(c).History()
	moved := h.Redo()
	c.JSON(http.StatusOK, moveResponse{Moved: moved, State: h.State()})
}

func (s *Server) flush(c *gin.Context) {
	h := current(c).History()
	moved := h.Flush()
	c.JSON(http.StatusOK, moveResponse{Moved: moved, State: h.State()})
}

// POST /v1/sessions/:id/switch {name, seed}
func (s *Server) switchDocument(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := s.sessions.Switch(current(c).ID, req.Name, req.Seed)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stateOf(sess))
}

// GET /v1/sessions/:id/history
func (s *Server) history(c *gin.Context) {
	snaps, cursor := current(c).History().Log()
	c.JSON(http.StatusOK, gin.H{
		"cursor":    cursor,
		"snapshots": snaps,
	})
}

// GET /v1/sessions/:id/share
// The link carries the visible text, including typing not yet committed.
// History is left untouched.
func (s *Server) shareSession(c *gin.Context) {
	resp, err := s.shareOf(current(c).History().State().Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
