package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"southbag/internal/auth"
	"southbag/internal/config"
	"southbag/internal/game"
	"southbag/internal/ledger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

type Server struct {
	cfg    config.APIConfig
	log    *slog.Logger
	keys   *auth.KeyVerifier
	game   *game.Service
	replay *replayCache
	mux    *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, keys *auth.KeyVerifier, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		keys:   keys,
		game:   gameSvc,
		replay: newReplayCache(replayTTL, replayEntries),
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.replayMiddleware)

		r.Post("/accounts", s.handleOpen)
		r.Route("/accounts/{owner}", func(r chi.Router) {
			r.Get("/", s.handleAccount)
			r.Post("/inquiry", s.handleInquiry)
			r.Post("/fees", s.handleChargeFee)
			r.Post("/fees/mystery", s.handleMysteryFee)
			r.Post("/transfer", s.handleTransfer)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/freeze", s.handleFreeze)
			r.Put("/status", s.handleSetStatus)
			r.Post("/rob", s.handleRob)
			r.Post("/upgrade", s.handleUpgrade)
			r.Post("/gift", s.handleGift)
			r.Post("/notifications", s.handleToggleNotifications)
			r.Get("/history", s.handleHistory)
			r.Delete("/history", s.handleClearHistory)

			r.Post("/gamble/{game}", s.handleGamble)
			r.Post("/beg", s.handleBeg)
			r.Post("/daily", s.handleDaily)

			r.Get("/loan", s.handleLoanStatus)
			r.Post("/loan", s.handleTakeLoan)
			r.Post("/loan/repay", s.handleRepayLoan)
			r.Post("/loan/default", s.handleDefaultLoan)

			r.Get("/portfolio", s.handlePortfolio)
			r.Post("/crypto/buy", s.handleBuyCrypto)
			r.Post("/crypto/sell", s.handleSellCrypto)

			r.Get("/insurance", s.handleInsurance)
			r.Post("/insurance", s.handleBuyInsurance)
			r.Post("/insurance/claim", s.handleClaim)

			r.Get("/job", s.handleJob)
			r.Post("/job", s.handleApplyJob)
			r.Post("/job/work", s.handleWork)
			r.Delete("/job", s.handleQuitJob)
		})

		r.Get("/crypto/prices", s.handlePrices)
		r.Get("/insurance/plans", s.handlePlans)
		r.Post("/fees/sweep", s.handleSweep)

		r.Route("/channels/{channel}/heist", func(r chi.Router) {
			r.Get("/", s.handleActiveHeist)
			r.Post("/", s.handleStartHeist)
			r.Post("/join", s.handleJoinHeist)
			r.Post("/execute", s.handleExecuteHeist)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.keys.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		key := bearerToken(r.Header.Get("Authorization"))
		if key == "" {
			key = strings.TrimSpace(r.Header.Get("X-API-Key"))
		}
		if err := s.keys.Verify(key); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func owner(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "owner"))
}

// respond writes out, or the mapped error when err is set.
func respond[T any](s *Server, w http.ResponseWriter, status int, out T, err error) {
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, status, out)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OwnerID string `json:"owner_id"`
		Name    string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Open(r.Context(), in.OwnerID, in.Name)
	respond(s, w, http.StatusCreated, out, err)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Account(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleInquiry(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.BalanceInquiry(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleChargeFee(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Description) == "" {
		in.Description = "Fee"
	}
	out, err := s.game.ChargeFee(r.Context(), owner(r), in.Amount, in.Description)
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleMysteryFee(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.MysteryFee(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount    decimal.Decimal `json:"amount"`
		Recipient string          `json:"recipient"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Transfer(r.Context(), owner(r), in.Amount, in.Recipient)
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Deposit(r.Context(), owner(r), in.Amount)
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	err := s.game.Freeze(r.Context(), owner(r))
	respond(s, w, http.StatusOK, map[string]any{"status": ledger.StatusFrozen}, err)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status ledger.AccountStatus `json:"status"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.game.SetStatus(r.Context(), owner(r), in.Status)
	respond(s, w, http.StatusOK, map[string]any{"status": in.Status}, err)
}

func (s *Server) handleRob(w http.ResponseWriter, r *http.Request) {
	var in struct {
		VictimID string `json:"victim_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Rob(r.Context(), owner(r), strings.TrimSpace(in.VictimID))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Upgrade(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleGift(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RecipientID string          `json:"recipient_id"`
		Amount      decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Gift(r.Context(), owner(r), strings.TrimSpace(in.RecipientID), in.Amount)
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleToggleNotifications(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.game.ToggleNotifications(r.Context(), owner(r))
	respond(s, w, http.StatusOK, map[string]any{"notifications": enabled}, err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	rows, err := s.game.History(r.Context(), owner(r), limit)
	if rows == nil {
		rows = []ledger.Transaction{}
	}
	respond(s, w, http.StatusOK, map[string]any{"transactions": rows}, err)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	n, err := s.game.ClearHistory(r.Context(), owner(r))
	respond(s, w, http.StatusOK, map[string]any{"deleted": n}, err)
}

func (s *Server) handleGamble(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Bet  decimal.Decimal `json:"bet"`
		Call string          `json:"call"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var (
		out game.GambleResult
		err error
	)
	switch chi.URLParam(r, "game") {
	case "coinflip":
		out, err = s.game.Coinflip(r.Context(), owner(r), in.Bet, in.Call)
	case "slots":
		out, err = s.game.Slots(r.Context(), owner(r), in.Bet)
	case "cards":
		out, err = s.game.CardGame(r.Context(), owner(r), in.Bet)
	default:
		writeError(w, http.StatusNotFound, "unknown game, try coinflip, slots or cards")
		return
	}
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleBeg(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Beg(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Daily(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleLoanStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.LoanStatus(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleTakeLoan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.TakeLoan(r.Context(), owner(r), in.Amount)
	respond(s, w, http.StatusCreated, out, err)
}

func (s *Server) handleRepayLoan(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.RepayLoan(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleDefaultLoan(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.DefaultLoan(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"coins": s.game.Prices()})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Portfolio(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleBuyCrypto(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Coin   string          `json:"coin"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.BuyCrypto(r.Context(), owner(r), in.Coin, in.Amount)
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleSellCrypto(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Coin string `json:"coin"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.SellCrypto(r.Context(), owner(r), in.Coin)
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handlePlans(w http.ResponseWriter, _ *http.Request) {
	plans := make([]map[string]any, 0, len(game.Plans))
	for _, id := range game.PlanIDs() {
		p := game.Plans[id]
		plans = append(plans, map[string]any{
			"id":           p.ID,
			"name":         p.Name,
			"premium":      p.Premium,
			"duration_sec": int64(p.Duration.Seconds()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (s *Server) handleInsurance(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Insurance(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleBuyInsurance(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Plan string `json:"plan"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.BuyInsurance(r.Context(), owner(r), in.Plan)
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.ClaimInsurance(r.Context(), owner(r), in.Reason)
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Job(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleApplyJob(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.ApplyJob(r.Context(), owner(r))
	respond(s, w, http.StatusCreated, out, err)
}

func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Work(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleQuitJob(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.QuitJob(r.Context(), owner(r))
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Idle  string `json:"idle"`
		Limit int    `json:"limit"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	idle := 24 * time.Hour
	if in.Idle != "" {
		d, err := time.ParseDuration(in.Idle)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid idle %q", in.Idle))
			return
		}
		idle = d
	}
	out, err := s.game.SweepFees(r.Context(), idle, in.Limit)
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleActiveHeist(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.ActiveHeist(r.Context(), chi.URLParam(r, "channel"))
	respond(s, w, http.StatusOK, out, err)
}

func decodeCrew(r *http.Request) (string, error) {
	var in struct {
		OwnerID string `json:"owner_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		return "", err
	}
	if in.OwnerID = strings.TrimSpace(in.OwnerID); in.OwnerID == "" {
		return "", errors.New("owner_id is required")
	}
	return in.OwnerID, nil
}

func (s *Server) handleStartHeist(w http.ResponseWriter, r *http.Request) {
	who, err := decodeCrew(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.StartHeist(r.Context(), chi.URLParam(r, "channel"), who)
	respond(s, w, http.StatusCreated, out, err)
}

func (s *Server) handleJoinHeist(w http.ResponseWriter, r *http.Request) {
	who, err := decodeCrew(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.JoinHeist(r.Context(), chi.URLParam(r, "channel"), who)
	respond(s, w, http.StatusOK, out, err)
}

func (s *Server) handleExecuteHeist(w http.ResponseWriter, r *http.Request) {
	who, err := decodeCrew(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.ExecuteHeist(r.Context(), chi.URLParam(r, "channel"), who)
	respond(s, w, http.StatusOK, out, err)
}

func rejectionStatus(code game.Code) int {
	switch code {
	case game.CodeNoAccount, game.CodeNoLoan, game.CodeNoHeist, game.CodeNoJob,
		game.CodeNoHoldings, game.CodeNoPolicy:
		return http.StatusNotFound
	case game.CodeCooldown, game.CodeExistingLoan, game.CodeHeistActive,
		game.CodeAlreadyJoined, game.CodeAlreadyEmployed:
		return http.StatusConflict
	case game.CodeInsufficient:
		return http.StatusPaymentRequired
	case game.CodeFrozen:
		return http.StatusLocked
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var rej *game.Error
	switch {
	case errors.As(err, &rej):
		writeJSON(w, rejectionStatus(rej.Code), map[string]any{
			"error":     rej.Error(),
			"rejection": rej,
		})
	case errors.Is(err, game.ErrStorage):
		s.log.Error("ledger unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, game.ErrStorage.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
