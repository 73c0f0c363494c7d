package pix

import (
	"bytes"
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/susu3304/falta1/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type EfiConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	CertFile      string
	KeyFile       string
	PixKey        string
	WebhookSecret string
}

// Efi talks to the Efí PIX API v2. Requests are authenticated with an
// OAuth2 client-credentials token over a mutual TLS connection.
type Efi struct {
	baseURL       string
	pixKey        string
	webhookSecret string
	http          *http.Client
}

func NewEfi(cfg EfiConfig) (*Efi, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load efi certificate: %w", err)
	}
	base := &http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		},
	}
	return newEfi(cfg, base), nil
}

func newEfi(cfg EfiConfig, base *http.Client) *Efi {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/oauth/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// The token source keeps this context for refreshes.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return &Efi{
		baseURL:       baseURL,
		pixKey:        cfg.PixKey,
		webhookSecret: cfg.WebhookSecret,
		http:          cc.Client(ctx),
	}
}

func (p *Efi) Name() string { return "efi" }

type efiCob struct {
	Calendario struct {
		Expiracao int `json:"expiracao"`
	} `json:"calendario"`
	Valor struct {
		Original string `json:"original"`
	} `json:"valor"`
	Chave              string `json:"chave"`
	SolicitacaoPagador string `json:"solicitacaoPagador,omitempty"`
}

type efiCobResponse struct {
	TxID          string `json:"txid"`
	Status        string `json:"status"`
	PixCopiaECola string `json:"pixCopiaECola"`
}

func (p *Efi) CreateCharge(ctx context.Context, in ChargeInput) (Charge, error) {
	var cob efiCob
	cob.Calendario.Expiracao = int(in.TTL / time.Second)
	cob.Valor.Original = in.Amount.Decimal()
	cob.Chave = p.pixKey
	cob.SolicitacaoPagador = clean(in.Description, 140)

	body, err := json.Marshal(cob)
	if err != nil {
		return Charge{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.baseURL+"/v2/cob/"+url.PathEscape(in.TxID), bytes.NewReader(body))
	if err != nil {
		return Charge{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return Charge{}, fmt.Errorf("failed to create charge: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Charge{}, fmt.Errorf("efi returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out efiCobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Charge{}, fmt.Errorf("failed to decode charge: %w", err)
	}
	if out.PixCopiaECola == "" {
		return Charge{}, fmt.Errorf("efi charge %s has no pixCopiaECola", in.TxID)
	}
	return Charge{TxID: in.TxID, BRCode: out.PixCopiaECola}, nil
}

type efiWebhook struct {
	Pix []struct {
		TxID       string `json:"txid"`
		EndToEndID string `json:"endToEndId"`
		Valor      string `json:"valor"`
		Horario    string `json:"horario"`
	} `json:"pix"`
}

// HandleWebhook accepts the BACEN standard notification. The shared secret
// travels in the hmac query parameter of the registered webhook URL.
func (p *Efi) HandleWebhook(ctx context.Context, wh Webhook) ([]Settlement, error) {
	got := wh.Query.Get("hmac")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(p.webhookSecret)) != 1 {
		return nil, fmt.Errorf("%w: invalid webhook token", model.ErrUnauthorized)
	}

	var pl efiWebhook
	if err := json.Unmarshal(wh.Body, &pl); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}

	out := make([]Settlement, 0, len(pl.Pix))
	for _, px := range pl.Pix {
		if px.TxID == "" {
			// Transfers without a charge are not ours.
			continue
		}
		paidAt, err := time.Parse(time.RFC3339, px.Horario)
		if err != nil {
			paidAt = time.Now()
		}
		out = append(out, Settlement{TxID: px.TxID, Status: model.StatusSettled, PaidAt: paidAt})
	}
	return out, nil
}
