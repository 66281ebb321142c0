package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"image/png"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AlfonsoCifuentes/riskmap-vision/chat"
	"github.com/AlfonsoCifuentes/riskmap-vision/config"
	"github.com/AlfonsoCifuentes/riskmap-vision/damage"
	"github.com/AlfonsoCifuentes/riskmap-vision/db"
	"github.com/AlfonsoCifuentes/riskmap-vision/geo"
	"github.com/AlfonsoCifuentes/riskmap-vision/imagery"
	"github.com/AlfonsoCifuentes/riskmap-vision/mosaic"
	"github.com/AlfonsoCifuentes/riskmap-vision/observability"
	"github.com/AlfonsoCifuentes/riskmap-vision/pipeline"
	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
	"github.com/AlfonsoCifuentes/riskmap-vision/vision"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type apiError struct {
	Message string `json:"message"`
}

type batchAssessRequest struct {
	Requests []pipeline.Request `json:"requests"`
	Workers  int                `json:"workers,omitempty"`
}

// assessRequestTimeout bounds one assessment end to end, including the
// imagery fetch.
const assessRequestTimeout = 120 * time.Second

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

func allowCORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	return true
}

func newAssessHandler(controller *socketController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowCORS(w, r) {
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req pipeline.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid assessment request payload")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), assessRequestTimeout)
		defer cancel()

		assessment, err := controller.runAssessment(ctx, req)
		if err != nil {
			log.Printf("assessment failed for (%.5f, %.5f): %v", req.Center.Lat, req.Center.Lon, err)
			writeJSONError(w, http.StatusBadGateway, "assessment failed: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, assessment)
	}
}

func newBatchAssessHandler(controller *socketController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowCORS(w, r) {
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req batchAssessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid batch payload")
			return
		}
		if len(req.Requests) == 0 {
			writeJSONError(w, http.StatusBadRequest, "batch contains no requests")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), assessRequestTimeout*time.Duration(len(req.Requests)))
		defer cancel()

		results := controller.runBatch(ctx, req.Requests, req.Workers)
		writeJSON(w, http.StatusOK, results)
	}
}

func newAssessmentsHandler(store db.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowCORS(w, r) {
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		query := r.URL.Query()

		if id := query.Get("id"); id != "" {
			assessment, found, err := store.GetAssessmentByID(id)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "failed to load assessment")
				return
			}
			if !found {
				writeJSONError(w, http.StatusNotFound, "assessment not found")
				return
			}
			writeJSON(w, http.StatusOK, assessment)
			return
		}

		if latStr, lonStr := query.Get("lat"), query.Get("lon"); latStr != "" && lonStr != "" {
			lat, latErr := strconv.ParseFloat(latStr, 64)
			lon, lonErr := strconv.ParseFloat(lonStr, 64)
			if latErr != nil || lonErr != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid lat/lon parameters")
				return
			}
			radiusKm := 10.0
			if radStr := query.Get("radiusKm"); radStr != "" {
				if parsed, err := strconv.ParseFloat(radStr, 64); err == nil && parsed > 0 {
					radiusKm = parsed
				}
			}
			assessments, err := store.GetAssessmentsByLocation(lat, lon, radiusKm)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "failed to query assessments")
				return
			}
			writeJSON(w, http.StatusOK, assessments)
			return
		}

		limit := 50
		if limitStr := query.Get("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		assessments, err := store.GetRecentAssessments(limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to query assessments")
			return
		}
		writeJSON(w, http.StatusOK, assessments)
	}
}

func newMosaicHandler(assembler *mosaic.Assembler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowCORS(w, r) {
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		query := r.URL.Query()
		bbox := geo.BBox{}
		var err error
		if bbox.MinLon, err = strconv.ParseFloat(query.Get("minLon"), 64); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid minLon")
			return
		}
		if bbox.MinLat, err = strconv.ParseFloat(query.Get("minLat"), 64); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid minLat")
			return
		}
		if bbox.MaxLon, err = strconv.ParseFloat(query.Get("maxLon"), 64); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid maxLon")
			return
		}
		if bbox.MaxLat, err = strconv.ParseFloat(query.Get("maxLat"), 64); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid maxLat")
			return
		}
		gridN := 2
		if gridStr := query.Get("grid"); gridStr != "" {
			if parsed, parseErr := strconv.Atoi(gridStr); parseErr == nil && parsed > 0 {
				gridN = parsed
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), assessRequestTimeout)
		defer cancel()

		result, err := assembler.Assemble(ctx, bbox, gridN)
		if err != nil {
			log.Printf("mosaic assembly failed for %s: %v", bbox.String(), err)
			writeJSONError(w, http.StatusBadGateway, "mosaic assembly failed")
			return
		}

		if query.Get("format") == "meta" {
			writeJSON(w, http.StatusOK, result)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, result.Image); err != nil {
			log.Printf("failed to encode mosaic PNG: %v", err)
		}
	}
}

func buildImageryClient(cfg *config.Config, secrets config.Secrets, metrics *observability.Metrics) *imagery.Client {
	timeout := time.Duration(cfg.Imagery.TimeoutSeconds) * time.Second

	var providers []imagery.Provider
	if secrets.SentinelClientID != "" && secrets.SentinelClientSecret != "" {
		providers = append(providers, imagery.NewSentinelHubProvider(
			cfg.Imagery.SentinelBaseURL, cfg.Imagery.SentinelToken,
			secrets.SentinelClientID, secrets.SentinelClientSecret, timeout, nil))
		log.Println("Sentinel Hub provider configured")
	} else {
		log.Println("Sentinel Hub credentials missing, provider disabled")
	}
	if secrets.TileMapAPIKey != "" {
		providers = append(providers, imagery.NewTileMapProvider(cfg.Imagery.TileMapBaseURL, secrets.TileMapAPIKey, timeout))
		log.Println("Tile map provider configured")
	} else {
		log.Println("Tile map API key missing, provider disabled")
	}
	providers = append(providers, imagery.NewSyntheticProvider())

	cache, err := imagery.NewDiskCache(cfg.Imagery.CacheDir)
	if err != nil {
		log.Fatalf("failed to create image cache at %s: %v", cfg.Imagery.CacheDir, err)
	}

	return imagery.NewClient(providers, cache,
		imagery.WithMetrics(metrics),
		imagery.WithPerProviderTimeout(timeout),
	)
}

func buildDetector(cfg *config.Config) *vision.Detector {
	classes, err := vision.LoadClassTable(cfg.Vision.ClassTablePath)
	if err != nil {
		log.Fatalf("failed to load class table from %s: %v", cfg.Vision.ClassTablePath, err)
	}
	log.Printf("Loaded class table %s with %d classes", classes.Version, classes.Len())

	var backend vision.Backend
	if serviceURL := utils.GetEnv("DETECTION_SERVICE_URL", ""); serviceURL != "" {
		remote := vision.NewRemoteBackend(serviceURL)
		if healthErr := remote.HealthCheck(); healthErr != nil {
			log.Printf("Detection service health check failed: %v", healthErr)
		}
		backend = remote
		log.Printf("Using remote detection service at %s", serviceURL)
	} else if cfg.Vision.ModelPath != "" {
		onnxBackend, loadErr := vision.LoadONNXBackend(cfg.Vision.ModelPath)
		if loadErr != nil {
			log.Printf("Detection model unavailable (%s): %v", cfg.Vision.ModelPath, loadErr)
			log.Println("Continuing without object detection, assessments will be partial")
		} else {
			backend = onnxBackend
			log.Printf("Loaded detection model from %s", cfg.Vision.ModelPath)
		}
	} else {
		log.Println("No detection model path configured, assessments will be partial")
	}

	return vision.NewDetector(backend, classes, vision.WithMinConfidence(cfg.Vision.MinConfidence))
}

func buildDamageAssessor(cfg *config.Config) *damage.Assessor {
	model, err := damage.LoadModel(cfg.Damage.ModelDir)
	if err != nil {
		if errors.Is(err, damage.ErrModelMissing) {
			log.Printf("No trained damage model in %s, running in basic-score mode", cfg.Damage.ModelDir)
			return damage.NewAssessor(nil)
		}
		log.Fatalf("failed to load damage model: %v", err)
	}
	log.Printf("Loaded damage model: %d samples, accuracy %.3f",
		model.Metadata.Samples, model.Metadata.Accuracy)
	return damage.NewAssessor(model)
}

func serve(protocol, port, configPath string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", configPath, err)
	}
	secrets := config.LoadSecrets()

	// The -p flag wins when given; otherwise listen on the configured address.
	if port == "" {
		port = cfg.Server.Addr
		if i := strings.LastIndex(port, ":"); i >= 0 {
			port = port[i+1:]
		}
	}

	metrics := observability.NewMetrics()
	client := buildImageryClient(cfg, secrets, metrics)
	detector := buildDetector(cfg)
	assessor := buildDamageAssessor(cfg)

	store, err := db.NewClient()
	if err != nil {
		log.Fatalf("failed to open assessment store: %v", err)
	}
	defer store.Close()

	var summarizer *chat.GeminiClient
	if os.Getenv("GEMINI_API_KEY") != "" {
		summarizer, err = chat.NewGeminiClient(context.Background())
		if err != nil {
			log.Printf("Gemini summarizer unavailable: %v", err)
			summarizer = nil
		} else {
			log.Println("Gemini situation summarizer enabled")
		}
	}

	pipe := pipeline.New(client, detector,
		pipeline.WithMetrics(metrics),
		pipeline.WithDamageAssessor(assessor),
		pipeline.WithImageSize(cfg.Imagery.Width, cfg.Imagery.Height),
	)
	assembler := mosaic.NewAssembler(client,
		mosaic.WithTileSize(cfg.Mosaic.TileSize),
		mosaic.WithConcurrency(cfg.Mosaic.Concurrency),
		mosaic.WithMetrics(metrics),
	)

	controller := newSocketController(pipe, store, detector, assessor, summarizer, cfg.Batch.Workers)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		connURL := socket.URL()
		log.Printf("CONNECTED: %s, transport: %s, remote addr: %s\n", socket.ID(), connURL.String(), socket.RemoteAddr())
		controller.emitModelInfo(socket)
		return nil
	})

	server.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		log.Printf("requestModelInfo received from %s\n", socket.ID())
		controller.handleRequestModelInfo(socket)
	})

	server.OnEvent("/", "requestAssessment", func(socket socketio.Conn, msg string) {
		log.Printf("requestAssessment event received from %s, data length: %d\n", socket.ID(), len(msg))
		// Run handler in goroutine to prevent blocking, with panic recovery
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleRequestAssessment for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during assessment"})
				}
			}()
			controller.handleRequestAssessment(socket, msg)
		}()
	})

	server.OnEvent("/", "requestBatchAssessment", func(socket socketio.Conn, msg string) {
		log.Printf("requestBatchAssessment event received from %s, data length: %d\n", socket.ID(), len(msg))
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleRequestBatchAssessment for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during batch assessment"})
				}
			}()
			controller.handleRequestBatchAssessment(socket, msg)
		}()
	})

	server.OnEvent("/", "requestRecentAssessments", func(socket socketio.Conn, msg string) {
		controller.handleRequestRecentAssessments(socket, msg)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	serveHTTPS := protocol == "https"

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/assess", newAssessHandler(controller))
	mux.HandleFunc("/api/assess/batch", newBatchAssessHandler(controller))
	mux.HandleFunc("/api/assessments", newAssessmentsHandler(store))
	mux.HandleFunc("/api/mosaic", newMosaicHandler(assembler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(server, serveHTTPS, port, mux)
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		cert_key_default := "/etc/letsencrypt/live/localport.online/privkey.pem"
		cert_file_default := "/etc/letsencrypt/live/localport.online/fullchain.pem"

		cert_key := utils.GetEnv("CERT_KEY", cert_key_default)
		cert_file := utils.GetEnv("CERT_FILE", cert_file_default)
		if cert_key == "" || cert_file == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(cert_file, cert_key); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
