package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"blandpanel-server/driver"
	"blandpanel-server/logger"

	"github.com/gorilla/websocket"
)

// ErrBusy is reported when a request arrives while another panel operation runs
var ErrBusy = errors.New("panel is busy")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebRequest struct {
	Command string  `json:"command"` // "CONNECT", "ON", "BRIGHTNESS", ...
	Value   float64 `json:"value"`   // brightness 0-255, simulation 0/1
}

type WebResponse struct {
	Status  string      `json:"status"` // "success", "error", "status"
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // gorilla connections allow one concurrent writer
}

func (c *client) send(resp WebResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(resp)
}

type Handler struct {
	Device *driver.Device
	mu     sync.Mutex // Ensure one panel operation at a time per server instance

	clientsMu sync.Mutex
	clients   map[*client]struct{}
}

// NewHandler wires the handler to the device status callback
func NewHandler(device *driver.Device) *Handler {
	h := &Handler{
		Device:  device,
		clients: make(map[*client]struct{}),
	}
	device.SetCallback(h.Broadcast)
	return h
}

// Register installs the HTTP routes
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/status", h.ServeStatus)
}

// ServeStatus returns the device status as JSON
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Device.Status())
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	h.addClient(c)
	defer h.removeClient(c)

	info := h.Device.Status()
	c.send(WebResponse{Status: "status", Message: info.Message, Data: info})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var req WebRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			c.send(WebResponse{Status: "error", Message: "Invalid JSON"})
			continue
		}

		go h.handleRequest(c, req)
	}
}

// Broadcast pushes a status update to every connected client
func (h *Handler) Broadcast(info driver.StatusInfo) {
	h.clientsMu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.Unlock()

	for _, c := range clients {
		if err := c.send(WebResponse{Status: "status", Message: info.Message, Data: info}); err != nil {
			logger.Debug("Broadcast failed: %v", err)
		}
	}
}

func (h *Handler) addClient(c *client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Handler) removeClient(c *client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	delete(h.clients, c)
}

func (h *Handler) handleRequest(c *client, req WebRequest) {
	c.send(h.execute(req))
}

// execute runs one request against the device and builds the reply
func (h *Handler) execute(req WebRequest) WebResponse {
	if req.Command == "STATUS" {
		return WebResponse{Status: "success", Message: "Status", Data: h.Device.Status()}
	}

	// Try to lock for the panel operation
	if !h.mu.TryLock() {
		return WebResponse{Status: "error", Message: ErrBusy.Error()}
	}
	defer h.mu.Unlock()

	var (
		err     error
		handled = true
		data    interface{}
	)

	switch req.Command {
	case "CONNECT":
		err = h.Device.Connect()
	case "DISCONNECT":
		err = h.Device.Disconnect()
	case "BRIGHTNESS":
		handled, err = h.Device.ProcessNumber(driver.PropertyIntensity, req.Value)
	case "ON":
		handled, err = h.Device.ProcessSwitch(driver.PropertyControl, true)
	case "OFF":
		handled, err = h.Device.ProcessSwitch(driver.PropertyControl, false)
	case "QUERY":
		data, err = h.Device.QueryStatus()
	case "SIMULATION":
		err = h.Device.SetSimulation(req.Value != 0)
	default:
		return WebResponse{Status: "error", Message: "Unknown Command"}
	}

	if !handled {
		err = driver.ErrUnknownProperty
	}
	if err != nil {
		return WebResponse{Status: "error", Message: describe(err)}
	}

	if data == nil {
		data = h.Device.Status()
	}
	return WebResponse{Status: "success", Message: req.Command + " done", Data: data}
}

func describe(err error) string {
	var cerr *driver.CommandError
	if errors.As(err, &cerr) && cerr.Faulted() {
		return "Panel not responding: " + err.Error()
	}
	return err.Error()
}
