package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/trempist/trempist/pkg/chat"
	"github.com/trempist/trempist/pkg/store"
)

// handleWebhookVerify answers the provider's subscription handshake.
func (s *Server) handleWebhookVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == s.cfg.WebhookVerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "verification failed")
}

// webhookEnvelope mirrors the subset of the Cloud API event payload we
// consume.
type webhookEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// handleWebhookReceive validates the signature, extracts text messages and
// hands them to the orchestrator. The provider expects a fast 200, so
// processing happens off the request goroutine.
func (s *Server) handleWebhookReceive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable body")
		return
	}

	if !s.signatureValid(c.GetHeader("X-Hub-Signature-256"), body) {
		c.String(http.StatusForbidden, "bad signature")
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.String(http.StatusBadRequest, "malformed payload")
		return
	}

	var inbounds []chat.Inbound
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			profileNames := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				profileNames[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || strings.TrimSpace(msg.Text.Body) == "" {
					continue
				}
				inbounds = append(inbounds, chat.Inbound{
					Phone:          msg.From,
					Text:           msg.Text.Body,
					ProfileName:    profileNames[msg.From],
					Prefix:         store.PrefixLive,
					SendExternally: true,
				})
			}
		}
	}

	// Detached from the request context: the provider gets its 200 while the
	// conversation continues. One goroutine per payload keeps the messages it
	// carried in arrival order.
	if len(inbounds) > 0 {
		go func() {
			for _, in := range inbounds {
				s.orchestrator.Handle(context.Background(), in)
			}
		}()
	}

	c.Status(http.StatusOK)
}

// signatureValid checks the Cloud API HMAC-SHA256 body signature. With no app
// secret configured (local harnesses), signature checking is off.
func (s *Server) signatureValid(header string, body []byte) bool {
	if s.cfg.WebhookAppSecret == "" {
		return true
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookAppSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header[len(prefix):]))
}

// sandboxRequest is the inline harness payload.
type sandboxRequest struct {
	Phone       string `json:"phone" binding:"required"`
	Text        string `json:"text" binding:"required"`
	ProfileName string `json:"profile_name"`
}

// handleSandboxMessage runs one message through the full flow under the
// sandbox namespace. Nothing is sent externally; the reply returns inline.
func (s *Server) handleSandboxMessage(c *gin.Context) {
	var req sandboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply := s.orchestrator.Handle(c.Request.Context(), chat.Inbound{
		Phone:          req.Phone,
		Text:           req.Text,
		ProfileName:    req.ProfileName,
		Prefix:         store.PrefixSandbox,
		SendExternally: false,
	})
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}
