// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// WebSocketHandler upgrades the request, mints a connection identifier and
// hands the new connection to the hub, which starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	id := uuid.NewString()
	session := NewSession(id, s.roster, s.hub, s.metrics, SessionOptions{
		RequireRegistration: s.cfg.RequireRegistration,
	})
	client := NewClient(id, conn, s.hub, session, r.RemoteAddr, s.cfg.MaxMessageSize, s.cfg.SendBufferSize)

	if !s.hub.Register(client) {
		slog.Info("rejecting connection during shutdown", "addr", r.RemoteAddr)
		_ = conn.Close()
	}
}

// HealthHandler is the liveness endpoint.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, "Chat Server is running")
}

// TestPageHandler serves a small HTML client for trying the relay by hand.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		slog.Debug("error writing HTML response", "err", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>relaychat test client</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        #users { color: #555; margin: 10px 0; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        img { max-width: 200px; display: block; }
    </style>
</head>
<body>
    <h1>relaychat test client</h1>
    <div>
        <input type="text" id="username" placeholder="Display name">
        <button onclick="connect()">Connect</button>
    </div>
    <div id="users">Online: nobody</div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendText()" disabled>Send</button>
        <input type="file" id="imageInput" accept="image/*" onchange="sendImage(this)" disabled>
    </div>
    <div id="messages"></div>

    <script>
        let ws = null;
        let me = '';
        let sent = 0;

        function emit(event, data) {
            ws.send(JSON.stringify({event: event, data: data}));
        }

        function newMessage(type) {
            sent++;
            return {id: Date.now() + '-' + sent, userId: '', username: me, timestamp: Date.now(), type: type};
        }

        function show(msg) {
            const el = document.createElement('div');
            const who = document.createElement('strong');
            who.textContent = msg.username + ': ';
            el.appendChild(who);
            if (msg.type === 'image') {
                const img = document.createElement('img');
                img.src = msg.imageData;
                el.appendChild(img);
            } else {
                el.appendChild(document.createTextNode(msg.text));
            }
            const box = document.getElementById('messages');
            box.appendChild(el);
            box.scrollTop = box.scrollHeight;
        }

        function connect() {
            me = document.getElementById('username').value || 'anonymous';
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() {
                emit('register user', me);
                for (const id of ['messageInput', 'sendButton', 'imageInput']) {
                    document.getElementById(id).disabled = false;
                }
            };
            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                if (frame.event === 'user list') {
                    const names = frame.data.map(function(u) { return u.username; });
                    document.getElementById('users').textContent = 'Online: ' + (names.join(', ') || 'nobody');
                } else if (frame.event === 'chat message') {
                    show(frame.data);
                }
            };
            ws.onclose = function() {
                document.getElementById('users').textContent = 'Disconnected';
            };
        }

        function sendText() {
            const input = document.getElementById('messageInput');
            if (!input.value) return;
            const msg = newMessage('text');
            msg.text = input.value;
            emit('chat message', msg);
            input.value = '';
        }

        function sendImage(input) {
            const file = input.files[0];
            if (!file) return;
            const reader = new FileReader();
            reader.onload = function() {
                const msg = newMessage('image');
                msg.imageData = reader.result;
                emit('chat message', msg);
            };
            reader.readAsDataURL(file);
            input.value = '';
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendText();
        });
    </script>
</body>
</html>`
