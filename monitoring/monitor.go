// Package monitoring turns a running simulation into a small HTTP server that
// reports progress and lets a user pause, continue, stop and inspect it.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/neurosim/monitoring/web"
	"github.com/sarchlab/neurosim/neuron"
	"github.com/sarchlab/neurosim/sim"
	"github.com/sarchlab/neurosim/sim/timing"
)

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	scheduler  *timing.Scheduler
	portNumber int
	listener   net.Listener

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterScheduler registers the scheduler that runs the simulation.
func (m *Monitor) RegisterScheduler(s *timing.Scheduler) {
	m.scheduler = s
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler that serves the monitoring API and the status
// page.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseScheduler)
	r.HandleFunc("/api/continue", m.continueScheduler)
	r.HandleFunc("/api/stop", m.stopScheduler)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/clocks", m.listClocks)
	r.HandleFunc("/api/objects", m.listObjects)
	r.HandleFunc("/api/object/{path:.*}", m.objectDetails)
	r.HandleFunc("/api/field", m.fieldValue)
	r.HandleFunc("/api/tables", m.listTables)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server with a custom port if
// wanted. It returns the port that the server listens to.
func (m *Monitor) StartServer() int {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	fmt.Fprintf(
		os.Stderr,
		"Monitoring simulation with http://localhost:%d\n",
		port)

	handler := m.Router()

	go func() {
		err := http.Serve(listener, handler)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			log.Panic(err)
		}
	}()

	return port
}

// StopServer closes the listener opened by StartServer.
func (m *Monitor) StopServer() {
	if m.listener == nil {
		return
	}

	m.listener.Close()
	m.listener = nil
}

func (m *Monitor) pauseScheduler(w http.ResponseWriter, _ *http.Request) {
	m.scheduler.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueScheduler(w http.ResponseWriter, _ *http.Request) {
	m.scheduler.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) stopScheduler(w http.ResponseWriter, _ *http.Request) {
	m.scheduler.Stop()
	_, err := w.Write(nil)
	dieOnErr(err)
}

type nowRsp struct {
	Now    float64 `json:"now"`
	Tick   uint64  `json:"tick"`
	State  string  `json:"state"`
	Paused bool    `json:"paused"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, nowRsp{
		Now:    float64(m.scheduler.Now()),
		Tick:   m.scheduler.Tick(),
		State:  m.scheduler.State().String(),
		Paused: m.scheduler.Paused(),
	})
}

type bindingRsp struct {
	Phase    string   `json:"phase"`
	Selector string   `json:"selector"`
	Objects  []string `json:"objects"`
}

type clockRsp struct {
	Index    int          `json:"index"`
	Period   float64      `json:"period"`
	Stride   uint64       `json:"stride,omitempty"`
	Bindings []bindingRsp `json:"bindings"`
}

func (m *Monitor) listClocks(w http.ResponseWriter, _ *http.Request) {
	plan, planErr := m.scheduler.Plan()

	rsp := []clockRsp{}
	for _, c := range m.scheduler.Clocks() {
		clock := clockRsp{
			Index:    c.Index,
			Period:   float64(c.Period),
			Bindings: []bindingRsp{},
		}

		if planErr == nil {
			clock.Stride = plan.Strides[c.Index]
		}

		for _, b := range c.Bindings {
			clock.Bindings = append(clock.Bindings, bindingRsp{
				Phase:    b.Phase,
				Selector: b.Selector,
				Objects:  b.Paths,
			})
		}

		rsp = append(rsp, clock)
	}

	writeJSON(w, rsp)
}

// objectsReadable tells if the tree can be read without racing a running
// tick. Reads are allowed while the scheduler is idle or paused.
func (m *Monitor) objectsReadable(w http.ResponseWriter) bool {
	if m.scheduler.State() == timing.Running && !m.scheduler.Paused() {
		w.WriteHeader(http.StatusConflict)
		_, err := w.Write([]byte("Simulation is running, pause it first"))
		dieOnErr(err)

		return false
	}

	return true
}

func (m *Monitor) listObjects(w http.ResponseWriter, r *http.Request) {
	if !m.objectsReadable(w) {
		return
	}

	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "/##"
	}

	objects, err := m.scheduler.Tree().FindAll(pattern, r.URL.Query().Get("type"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	paths := make([]string, 0, len(objects))
	for _, o := range objects {
		paths = append(paths, o.Path())
	}

	writeJSON(w, paths)
}

type objectRsp struct {
	Path     string              `json:"path"`
	Class    string              `json:"class"`
	Fields   map[string]float64  `json:"fields"`
	Children []string            `json:"children"`
	Clocks   []timing.Assignment `json:"clocks"`
}

func (m *Monitor) objectDetails(w http.ResponseWriter, r *http.Request) {
	if !m.objectsReadable(w) {
		return
	}

	o := m.findObjectOr404(w, "/"+mux.Vars(r)["path"])
	if o == nil {
		return
	}

	rsp := objectRsp{
		Path:     o.Path(),
		Class:    o.Class().Name,
		Fields:   o.Fields(),
		Children: []string{},
		Clocks:   m.scheduler.Assignments(o),
	}

	for _, c := range o.Children() {
		rsp.Children = append(rsp.Children, c.Name())
	}

	writeJSON(w, rsp)
}

// fieldValue reports either a value of the field table or, for dotted names,
// a member of the object's behavior. The object and the field are given by
// the path and field query parameters.
func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	if !m.objectsReadable(w) {
		return
	}

	path := r.URL.Query().Get("path")
	field := r.URL.Query().Get("field")
	if field == "" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "Error: field is required")
		return
	}

	o := m.findObjectOr404(w, path)
	if o == nil {
		return
	}

	if v, err := o.GetField(field); err == nil {
		writeJSON(w, map[string]float64{field: v})
		return
	}

	if o.Behavior() == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Field %s not found", field)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(o.Behavior())
	serializer.SetMaxDepth(1)

	err := serializer.SetEntryPoint(strings.Split(field, "."))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type tableRsp struct {
	Path   string  `json:"path"`
	Column string  `json:"column"`
	Size   int     `json:"size"`
	Last   float64 `json:"last"`
}

// listTables reports the recording tables, largest first by default.
func (m *Monitor) listTables(w http.ResponseWriter, r *http.Request) {
	if !m.objectsReadable(w) {
		return
	}

	sortMethod, limit, offset, err := m.tablesParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	objects, err := m.scheduler.Tree().FindAll("/##", neuron.TableClass.Name)
	dieOnErr(err)

	tables := make([]tableRsp, 0, len(objects))
	for _, o := range objects {
		t, _ := neuron.TableOf(o)
		rsp := tableRsp{
			Path:   o.Path(),
			Column: t.ColumnName(),
			Size:   t.Len(),
		}

		if rsp.Size > 0 {
			rsp.Last = t.Vector()[rsp.Size-1]
		}

		tables = append(tables, rsp)
	}

	writeJSON(w, sortAndSelectTables(tables, sortMethod, limit, offset))
}

func (*Monitor) tablesParseParams(
	r *http.Request,
) (sort string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "size"
	}
	if sortMethod != "size" && sortMethod != "path" {
		errStr := fmt.Sprintf(
			"Invalid sort method: %s. Allowed values are `size` and `path`",
			sortMethod)
		return "", 0, 0, errors.New(errStr)
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "0"
	}
	limitNumber, err := strconv.Atoi(limitStr)
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offsetStr := r.URL.Query().Get("offset")
	if offsetStr == "" {
		offsetStr = "0"
	}
	offsetNumber, err := strconv.Atoi(offsetStr)
	if err != nil {
		return sortMethod, limitNumber, 0, err
	}

	if limitNumber < 0 || offsetNumber < 0 {
		return sortMethod, 0, 0, errors.New("limit and offset cannot be negative")
	}

	return sortMethod, limitNumber, offsetNumber, nil
}

// sortAndSelectTables orders the tables and returns a page of them. A limit
// of 0 means no limit.
func sortAndSelectTables(
	tables []tableRsp,
	sortMethod string,
	limit, offset int,
) []tableRsp {
	sorted := make([]tableRsp, len(tables))
	copy(sorted, tables)

	switch sortMethod {
	case "size":
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Size > sorted[j].Size
		})
	case "path":
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Path < sorted[j].Path
		})
	default:
		panic("Invalid sort method " + sortMethod)
	}

	if offset > len(sorted) {
		offset = len(sorted)
	}

	end := len(sorted)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return sorted[offset:end]
}

func (m *Monitor) findObjectOr404(
	w http.ResponseWriter,
	path string,
) *sim.Object {
	o, found := m.scheduler.Tree().Lookup(path)
	if !found {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Object not found"))
		dieOnErr(err)

		return nil
	}

	return o
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]progressBarRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
