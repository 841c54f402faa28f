package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"Relay_Selector_Go/internal/config"
	"Relay_Selector_Go/internal/datasource"
	"Relay_Selector_Go/internal/engine"
	"Relay_Selector_Go/internal/metrics"
	"Relay_Selector_Go/internal/output"
	"Relay_Selector_Go/internal/tester"
	"Relay_Selector_Go/pkg/model"
)

//go:embed web
var embeddedFS embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

const shutdownTimeout = 5 * time.Second

// Server 提供 Web UI、配置读写、WebSocket 实时探测与 /metrics
type Server struct {
	cfgPath string
	logger  *zap.Logger

	// ResultDir 非空时，每次运行的结果会写入该目录
	ResultDir string
	// Prober 为空时使用真实 TCP 探测
	Prober tester.Prober

	registry  *prometheus.Registry
	collector *metrics.Collector
}

func New(cfgPath string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Server{
		cfgPath:   cfgPath,
		logger:    logger,
		registry:  reg,
		collector: metrics.New(reg),
	}
}

// Handler 返回注册了所有路由的 http.Handler
func (s *Server) Handler() (http.Handler, error) {
	// Create a sub-filesystem to remove the "web" prefix
	staticFS, err := fs.Sub(embeddedFS, "web")
	if err != nil {
		return nil, fmt.Errorf("failed to create sub filesystem: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		f, err := staticFS.Open("index.html")
		if err != nil {
			http.Error(w, "index.html not found", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "failed to read index.html", http.StatusInternalServerError)
			return
		}
		http.ServeContent(w, r, "index.html", time.Now(), bytes.NewReader(content))
	})

	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/relays", s.handleRelays)
	mux.HandleFunc("/ws/run", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux, nil
}

// Start 启动 Web 服务器，阻塞直到 ctx 结束后优雅关闭
func (s *Server) Start(ctx context.Context, port int, openInBrowser bool) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d", port)
	s.logger.Info("服务器正在启动", zap.String("url", url))
	if openInBrowser {
		// 尝试在默认浏览器中打开 URL
		go s.openBrowser(url)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("服务器启动失败: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := config.LoadConfig(s.cfgPath)
		if err != nil {
			http.Error(w, "Failed to load config", http.StatusInternalServerError)
			return
		}
		writeJSON(w, cfg)
	case http.MethodPost:
		var newConfig map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := saveConfigWithComments(s.cfgPath, newConfig); err != nil {
			http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type cityInfo struct {
	Name   string `json:"name"`
	Relays int    `json:"relays"`
}

type countryInfo struct {
	Name   string     `json:"name"`
	Cities []cityInfo `json:"cities"`
}

// handleRelays 列出本地中继列表中的国家与城市，供前端展示
func (s *Server) handleRelays(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.LoadConfig(s.cfgPath)
	if err != nil {
		http.Error(w, "Failed to load config", http.StatusInternalServerError)
		return
	}
	path := cfg.RelaysFile
	if path == "" {
		if path, err = datasource.DefaultRelaysPath(""); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	endpoints, err := datasource.LoadRelaysFromFile(path, datasource.LoadOptions{Port: cfg.Port})
	if err != nil {
		http.Error(w, "Failed to load relays", http.StatusInternalServerError)
		return
	}

	counts := map[string]map[string]int{}
	for _, ep := range endpoints {
		if counts[ep.Country] == nil {
			counts[ep.Country] = map[string]int{}
		}
		counts[ep.Country][ep.City]++
	}

	countries := make([]countryInfo, 0, len(counts))
	for country, cities := range counts {
		info := countryInfo{Name: country}
		for city, n := range cities {
			info.Cities = append(info.Cities, cityInfo{Name: city, Relays: n})
		}
		sort.Slice(info.Cities, func(i, j int) bool { return info.Cities[i].Name < info.Cities[j].Name })
		countries = append(countries, info)
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Name < countries[j].Name })

	writeJSON(w, countries)
}

// wsMessage 是 WebSocket 上传输的消息，Type 为 log / endpoint / result / error
type wsMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// 1. 等待客户端发来的配置
	_, msg, err := conn.ReadMessage()
	if err != nil {
		s.logger.Warn("WebSocket read for config failed", zap.Error(err))
		return
	}

	// 2. 先加载文件中的配置作为基础，再用 WebSocket 发来的数据覆盖它
	runConfig, err := config.LoadConfig(s.cfgPath)
	if err != nil {
		_ = conn.WriteJSON(wsMessage{Type: "error", Payload: fmt.Sprintf("Failed to load base config: %v", err)})
		return
	}
	if len(bytes.TrimSpace(msg)) > 0 {
		if err := json.Unmarshal(msg, runConfig); err != nil {
			_ = conn.WriteJSON(wsMessage{Type: "error", Payload: fmt.Sprintf("Invalid config format: %v", err)})
			return
		}
	}

	// 3. 客户端断开时取消探测
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.logger.Debug("client disconnected", zap.Error(err))
				return
			}
		}
	}()

	// 4. 唯一的写协程，串行化所有写操作
	writeChan := make(chan wsMessage, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for m := range writeChan {
			if err := conn.WriteJSON(m); err != nil {
				s.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}
		}
	}()

	send := func(m wsMessage) {
		select {
		case writeChan <- m:
		case <-writerDone:
		case <-ctx.Done():
		}
	}
	progressCallback := func(message string) {
		send(wsMessage{Type: "log", Payload: message})
	}

	pipeline := &engine.Pipeline{
		Config: runConfig,
		Logger: s.logger,
		Prober: s.Prober,
		Callbacks: s.collector.Callbacks(engine.Callbacks{
			OnEndpointDone: func(st *model.EndpointStats) {
				send(wsMessage{Type: "endpoint", Payload: output.ToHumanReadable([]*model.EndpointStats{st})[0]})
			},
		}),
	}

	// 5. 在当前协程中运行引擎，所有回调在 Select 返回前结束
	finalResults, err := pipeline.Select(ctx, progressCallback)
	if err != nil {
		s.logger.Error("引擎运行时出错", zap.Error(err))
		send(wsMessage{Type: "error", Payload: fmt.Sprintf("引擎运行时出错: %v", err)})
	} else {
		send(wsMessage{Type: "result", Payload: output.ToHumanReadable(finalResults)})
		s.saveResults(finalResults, progressCallback)
	}

	// 6. 等待写协程发送完剩余消息后关闭连接
	progressCallback("--- 任务完成 ---")
	close(writeChan)
	<-writerDone
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) saveResults(results []*model.EndpointStats, progressCb engine.ProgressCallback) {
	if s.ResultDir == "" || len(results) == 0 {
		return
	}
	jsonFile := filepath.Join(s.ResultDir, "web_result.json")
	csvFile := filepath.Join(s.ResultDir, "web_result.csv")

	if err := output.WriteJSONFile(jsonFile, results); err != nil {
		s.logger.Error("保存 JSON 文件失败", zap.Error(err))
		progressCb(fmt.Sprintf("错误: 保存 %s 失败。", jsonFile))
	} else {
		progressCb(fmt.Sprintf("结果已保存到 %s", jsonFile))
	}
	if err := output.WriteCSVFile(csvFile, results); err != nil {
		s.logger.Error("保存 CSV 文件失败", zap.Error(err))
		progressCb(fmt.Sprintf("错误: 保存 %s 失败。", csvFile))
	} else {
		progressCb(fmt.Sprintf("结果已保存到 %s", csvFile))
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func saveConfigWithComments(cfgPath string, newValues map[string]interface{}) error {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%s is not a YAML mapping", cfgPath)
	}

	// yaml.v3 unmarshals to a document node, we need the content
	docNode := root.Content[0]

	seen := make(map[string]bool, len(newValues))
	for i := 0; i+1 < len(docNode.Content); i += 2 {
		keyNode := docNode.Content[i]
		valNode := docNode.Content[i+1]

		if newValue, ok := newValues[keyNode.Value]; ok {
			setNodeValue(valNode, newValue)
			seen[keyNode.Value] = true
		}
	}

	// 文件中没有的键追加到末尾，按键名排序保证输出稳定
	var missing []string
	for key := range newValues {
		if !seen[key] {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	for _, key := range missing {
		valNode := &yaml.Node{}
		setNodeValue(valNode, newValues[key])
		docNode.Content = append(docNode.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, valNode)
	}

	out, err := yaml.Marshal(&root)
	if err != nil {
		return err
	}

	// 写回前校验，避免把无效配置落盘
	cfg := config.Default()
	if err := yaml.Unmarshal(out, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return os.WriteFile(cfgPath, out, 0644)
}

// openBrowser tries to open the URL in a default browser.
func (s *Server) openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}
	if err != nil {
		s.logger.Warn("无法自动打开浏览器，请手动打开", zap.String("url", url), zap.Error(err))
	}
}

// setNodeValue updates a yaml.Node's value based on the provided interface{}.
// It handles basic types, null and slices.
func setNodeValue(node *yaml.Node, value interface{}) {
	node.Style = 0
	switch v := value.(type) {
	case nil:
		node.Kind = yaml.ScalarNode
		node.Tag = "!!null"
		node.Value = "null"
		node.Content = nil
	case []interface{}:
		node.Kind = yaml.SequenceNode
		node.Tag = "!!seq"
		node.Content = []*yaml.Node{}
		for _, item := range v {
			itemNode := &yaml.Node{}
			setNodeValue(itemNode, item)
			node.Content = append(node.Content, itemNode)
		}
	case bool:
		node.Kind = yaml.ScalarNode
		node.Tag = "!!bool"
		node.Value = fmt.Sprintf("%t", v)
		node.Content = nil
	case float64:
		node.Kind = yaml.ScalarNode
		node.Content = nil
		if v == float64(int64(v)) {
			node.Tag = "!!int"
			node.Value = fmt.Sprintf("%d", int64(v))
		} else {
			node.Tag = "!!float"
			node.Value = fmt.Sprintf("%g", v)
		}
	default:
		node.Kind = yaml.ScalarNode
		node.Tag = "!!str"
		node.Value = fmt.Sprintf("%v", v)
		node.Content = nil
	}
}
