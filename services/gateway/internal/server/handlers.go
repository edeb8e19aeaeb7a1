package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"bizdesk/internal/util"
	"bizdesk/pkg/domain"
	"bizdesk/services/gateway/internal/app"
	"bizdesk/services/gateway/internal/realtime"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginUser struct {
	Email string          `json:"email"`
	Name  string          `json:"name"`
	Role  domain.UserRole `json:"role"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  loginUser `json:"user"`
}

type productRequest struct {
	Name  string  `json:"name"`
	Price number  `json:"price"`
	Stock integer `json:"stock"`
}

type orderItemRequest struct {
	ProductID   string  `json:"productId"`
	Description string  `json:"description"`
	Quantity    integer `json:"quantity"`
	Price       number  `json:"price"`
}

type orderRequest struct {
	Items []orderItemRequest `json:"items"`
	Total number             `json:"total"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// auth handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "gateway.register", "rate_limited")
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.audit(r, "gateway.register", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.Register(req.Email, req.Password, req.Name)
	if err != nil {
		s.audit(r, "gateway.register", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "gateway.register", "success", "user_id", user.ID, "role", string(user.Role))
	writeJSON(w, http.StatusCreated, map[string]string{"message": "created", "userId": user.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "gateway.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.audit(r, "gateway.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "gateway.login", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "gateway.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User:  loginUser{Email: user.Email, Name: user.Name, Role: user.Role},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, p app.Principal) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		s.audit(r, "gateway.logout", "fail", "user_id", p.UserID, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "gateway.logout", "success", "user_id", p.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, p app.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, err := s.app.Me(p)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// /products
func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request, p app.Principal) {
	switch r.Method {
	case http.MethodGet:
		products, err := s.app.ListProducts()
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if products == nil {
			products = []domain.Product{}
		}
		writeJSON(w, http.StatusOK, products)
	case http.MethodPost:
		var req productRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		product, err := s.app.CreateProduct(p, app.ProductInput{
			Name:  req.Name,
			Price: req.Price.Float(),
			Stock: req.Stock.Int(),
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, product)
	default:
		methodNotAllowed(w)
	}
}

// /products/{id}
func (s *Server) handleProductByID(w http.ResponseWriter, r *http.Request, p app.Principal) {
	id := strings.TrimPrefix(r.URL.Path, "/products/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteProduct(id); err != nil {
		writeAppError(w, r, err)
		return
	}
	util.LoggerFromContext(r.Context()).Info("product deleted", "product_id", id, "by", p.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// /orders
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request, p app.Principal) {
	switch r.Method {
	case http.MethodGet:
		orders, err := s.app.ListOrders(p)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if orders == nil {
			orders = []domain.Order{}
		}
		writeJSON(w, http.StatusOK, orders)
	case http.MethodPost:
		var req orderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		in := app.OrderInput{Total: req.Total.Float(), Items: make([]app.OrderItemInput, 0, len(req.Items))}
		for _, item := range req.Items {
			in.Items = append(in.Items, app.OrderItemInput{
				ProductID:   item.ProductID,
				Description: item.Description,
				Quantity:    item.Quantity.Int(),
				Price:       item.Price.Float(),
			})
		}
		order, err := s.app.CreateOrder(r.Context(), p, in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	default:
		methodNotAllowed(w)
	}
}

// /orders/{id}/status
func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request, p app.Principal) {
	path := strings.TrimPrefix(r.URL.Path, "/orders/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "status" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	order, err := s.app.UpdateOrderStatus(r.Context(), p, parts[0], req.Status)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// /chat/history
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, p app.Principal) {
	switch r.Method {
	case http.MethodGet:
		msgs, err := s.app.ChatHistory(p)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	case http.MethodDelete:
		s.deleteChatHistory(w, r, p, "")
	default:
		methodNotAllowed(w)
	}
}

// /chat/history/{room}
func (s *Server) handleChatHistoryRoom(w http.ResponseWriter, r *http.Request, p app.Principal) {
	room := strings.TrimPrefix(r.URL.Path, "/chat/history/")
	if strings.Contains(room, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	s.deleteChatHistory(w, r, p, room)
}

func (s *Server) deleteChatHistory(w http.ResponseWriter, r *http.Request, p app.Principal, room string) {
	cleared, n, err := s.app.DeleteChatHistory(p, room)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	util.LoggerFromContext(r.Context()).Info("chat history hidden", "room", cleared, "messages", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "room history hidden",
		"room":    cleared,
		"hidden":  n,
	})
}

// /chat/upload takes an optional multipart "file".
func (s *Server) handleChatUpload(w http.ResponseWriter, r *http.Request, p app.Principal) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	var (
		body        io.Reader
		filename    string
		contentType string
		size        int64
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			defer file.Close()
			body = file
			filename = header.Filename
			contentType = header.Header.Get("Content-Type")
			size = header.Size
		case errors.Is(err, http.ErrMissingFile):
		default:
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		defer cleanupMultipart(r.MultipartForm)
	}
	att, err := s.app.UploadAttachment(r.Context(), p, filename, contentType, body, size)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, att)
}

func cleanupMultipart(form *multipart.Form) {
	if form != nil {
		_ = form.RemoveAll()
	}
}

// billing
func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request, p app.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	invoices, err := s.app.ListInvoices(p)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if invoices == nil {
		invoices = []domain.Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request, p app.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	clients, err := s.app.ListClients(p)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if clients == nil {
		clients = []domain.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

// /ws authenticates before the upgrade; browsers pass the token as a query
// parameter since they cannot set headers on websocket requests.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "realtime unavailable")
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		s.audit(r, "gateway.ws.authorize", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	p, err := s.app.Authenticate(token)
	if err != nil {
		s.audit(r, "gateway.ws.authorize", "fail", "reason", "invalid_token")
		writeError(w, http.StatusForbidden, "invalid token")
		return
	}
	user, err := s.app.ChatUser(p)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "gateway.ws.authorize", "success", "user_id", user.ID)
	up := realtime.Upgrader(func(r *http.Request) bool {
		return util.OriginAllowed(s.origins, r.Header.Get("Origin"))
	})
	logger := util.LoggerFromContext(r.Context())
	if err := s.hub.Serve(w, r, up, user, s.app, logger); err != nil {
		// The upgrader has already answered the client.
		logger.Warn("websocket upgrade failed", "err", err)
	}
}
