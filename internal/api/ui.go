package api

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"batchocr/internal/config"
	"batchocr/internal/job"
)

const uiStyle = `
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:960px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    header{margin-bottom:24px}
    h1{font-size:22px;margin:0 0 8px}
    a{color:#0b63e5;text-decoration:none}
    a:hover{text-decoration:underline}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .row{display:flex;gap:12px;flex-wrap:wrap;align-items:center}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:10px 14px;border-radius:8px;cursor:pointer}
    .btn.secondary{background:#444}
    .btn.danger{background:#b3261e}
    input[type=text],textarea,select{padding:9px 10px;border:1px solid #dcdcdc;border-radius:8px;width:100%;box-sizing:border-box}
    .muted{color:#666}
    .mono{font-family:ui-monospace,SFMono-Regular,Menlo,Monaco,Consolas,monospace}
    .status{display:inline-block;padding:4px 8px;border-radius:6px;background:#efefef;font-size:12px}
    progress{width:100%;height:18px}
    table{border-collapse:collapse;width:100%}
    th,td{text-align:left;padding:6px 8px;border-bottom:1px solid #eee;font-size:14px}
    footer{margin-top:24px;color:#666;font-size:12px}`

var uiTemplates = template.Must(template.New("layout").Parse(`{{define "head"}}
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  {{if .Refresh}}<meta http-equiv="refresh" content="1"/>{{end}}
  <title>Batch OCR{{if .Title}} · {{.Title}}{{end}}</title>
  <style>` + uiStyle + `</style>
</head>
<body>
  <header>
    <h1><a href="/">Batch OCR</a></h1>
    <div class="muted">Searchable PDFs for whole folders</div>
  </header>
  {{if .Error}}
  <div class="card" style="border-color:#f2b8b5;background:#fff6f6">
    <strong style="color:#b3261e">Error:</strong> <span class="muted">{{.Error}}</span>
  </div>
  {{end}}
{{end}}

{{define "foot"}}
  <footer>
    <div>API base: <span class="mono">/api/v1</span></div>
  </footer>
</body>
</html>
{{end}}

{{define "home"}}
{{template "head" .}}
  <div class="card">
    <h2>New batch</h2>
    <form method="post" action="/ui/batches">
      <div class="row">
        <label><input type="radio" name="mode" value="folders" {{if ne .Mode "files"}}checked{{end}}/> Folders</label>
        <label><input type="radio" name="mode" value="files" {{if eq .Mode "files"}}checked{{end}}/> Files</label>
        <label><input type="checkbox" name="recursive" value="1" {{if .Recursive}}checked{{end}}/> Include subfolders</label>
      </div>
      <p class="muted">One folder or file per line</p>
      <textarea name="inputs" rows="5" class="mono">{{.Inputs}}</textarea>
      <p class="muted">Target folder (empty: replace files in place)</p>
      <input type="text" name="target_dir" value="{{.TargetDir}}" class="mono"/>
      <div style="margin-top:12px"><button class="btn" type="submit">Discover and start</button></div>
    </form>
    <div class="muted">POST /api/v1/batches, then POST /api/v1/batches/{id}/start</div>
  </div>

  <div class="card">
    <h2>Runs</h2>
    {{if .Runs}}
    <table>
      <tr><th>Started</th><th>State</th><th>Progress</th><th></th></tr>
      {{range .Runs}}
      <tr>
        <td class="mono">{{.StartedAt}}</td>
        <td><span class="status">{{.State}}</span></td>
        <td>{{.Progress}}</td>
        <td><a href="/ui/runs/{{.RunID}}">open</a></td>
      </tr>
      {{end}}
    </table>
    {{else}}
    <div class="muted">No runs yet</div>
    {{end}}
  </div>
{{template "foot" .}}
{{end}}

{{define "run"}}
{{template "head" .}}
  <div class="card">
    <h2>Run <span class="mono">{{.Run.RunID}}</span></h2>
    <div>State: <span class="status">{{.Run.State}}</span></div>
    <progress max="100" value="{{printf "%.0f" .Run.Percent}}"></progress>
    <div>{{.Run.Progress}}</div>
    <div class="muted">{{.Run.Succeeded}} succeeded · {{.Run.Failed}} failed</div>
    {{if .Run.LogError}}<div class="muted">Completion log: {{.Run.LogError}}</div>{{end}}
    {{if .Active}}
    <form method="post" action="/ui/runs/{{.Run.RunID}}/stop" style="margin-top:12px">
      <button class="btn danger" type="submit">Stop</button>
    </form>
    {{end}}
    {{if .Run.ArchiveURL}}
    <div style="margin-top:12px"><a class="btn" href="{{.Run.ArchiveURL}}">Download outputs</a></div>
    {{end}}
  </div>

  <div class="card">
    <h3>Files</h3>
    <table>
      <tr><th>Input</th><th>State</th><th></th></tr>
      {{range .Run.Files}}
      <tr>
        <td class="mono">{{.Input}}</td>
        <td><span class="status">{{.State}}</span></td>
        <td class="muted">{{.Error}}</td>
      </tr>
      {{end}}
    </table>
  </div>

  <div class="card">
    <h3>Completion log</h3>
    {{if .Entries}}
    <table>
      <tr><th>Date</th><th>Time</th><th>File</th><th>Path</th></tr>
      {{range .Entries}}
      <tr><td>{{.Date}}</td><td>{{.Time}}</td><td>{{.FileName}}</td><td class="mono">{{.Path}}</td></tr>
      {{end}}
    </table>
    {{else}}
    <div class="muted">Nothing logged yet{{if .Run.LogPath}} in <span class="mono">{{.Run.LogPath}}</span>{{end}}</div>
    {{end}}
  </div>
{{template "foot" .}}
{{end}}
`))

// RegisterUIRoutes registers minimal HTML UI without JS
func (a *API) RegisterUIRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(uiTemplates)
	router.GET("/", a.UIHome)
	router.POST("/ui/batches", a.UIStartBatch)
	router.GET("/ui/runs/:id", a.UIRun)
	router.POST("/ui/runs/:id/stop", a.UIStopRun)
}

func (a *API) homeData(errMsg string) gin.H {
	cfg := a.manager.Config()
	inputs := cfg.Sources
	if cfg.Mode == config.ModeFiles {
		inputs = cfg.Files
	}
	runs := a.manager.ListRuns()
	views := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		views = append(views, a.toRunResponse(r))
	}
	return gin.H{
		"Mode":      string(cfg.Mode),
		"Recursive": cfg.Recursive,
		"Inputs":    strings.Join(inputs, "\n"),
		"TargetDir": cfg.TargetDir,
		"Runs":      views,
		"Error":     errMsg,
	}
}

// UIHome renders the batch form and the run history
func (a *API) UIHome(c *gin.Context) { c.HTML(http.StatusOK, "home", a.homeData("")) }

// UIStartBatch discovers the submitted inputs, starts the batch and
// redirects to its run page
func (a *API) UIStartBatch(c *gin.Context) {
	var inputs []string
	for _, line := range strings.Split(c.PostForm("inputs"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			inputs = append(inputs, line)
		}
	}
	recursive := c.PostForm("recursive") != ""
	target := strings.TrimSpace(c.PostForm("target_dir"))
	body := discoverRequest{Mode: config.Mode(c.DefaultPostForm("mode", string(config.ModeFolders))), Recursive: &recursive, TargetDir: &target}
	if body.Mode == config.ModeFiles {
		body.Files = inputs
	} else {
		body.Mode = config.ModeFolders
		body.Sources = inputs
	}
	if len(inputs) == 0 {
		c.HTML(http.StatusBadRequest, "home", a.homeData("no inputs given"))
		return
	}

	batch, err := a.manager.Discover(a.discoverRequest(body))
	if err != nil {
		c.HTML(http.StatusUnprocessableEntity, "home", a.homeData(err.Error()))
		return
	}
	run, err := a.manager.Start(batch.ID)
	if err != nil {
		a.manager.DiscardBatch(batch.ID)
		c.HTML(statusFor(err), "home", a.homeData(err.Error()))
		return
	}
	c.Redirect(http.StatusFound, "/ui/runs/"+run.ID)
}

// UIRun renders a run page. It refreshes itself every second until the run
// reaches a terminal state.
func (a *API) UIRun(c *gin.Context) {
	id := c.Param("id")
	run, ok := a.manager.GetRun(id)
	if !ok {
		c.HTML(http.StatusNotFound, "home", a.homeData("run not found"))
		return
	}
	entries, err := a.manager.LogEntries(id)
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	active := !run.State.Terminal() && run.State != job.StateIdle
	c.HTML(http.StatusOK, "run", gin.H{
		"Title":   run.ID,
		"Run":     a.toRunResponse(run),
		"Entries": entries,
		"Active":  active,
		"Refresh": active,
		"Error":   errMsg,
	})
}

// UIStopRun requests a stop and redirects back to the run page
func (a *API) UIStopRun(c *gin.Context) {
	id := c.Param("id")
	if err := a.manager.Stop(id); err != nil && statusFor(err) != http.StatusConflict {
		c.HTML(statusFor(err), "home", a.homeData(err.Error()))
		return
	}
	c.Redirect(http.StatusFound, "/ui/runs/"+id)
}
