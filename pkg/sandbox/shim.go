package sandbox

import (
	"bytes"
	"encoding/json"
	"text/template"
)

type shimParams struct {
	ProxyAddr  string
	Token      string
	Limit      int
	PriorSteps map[int]json.RawMessage
	UserCode   string
}

// shimTemplate wires the fixed variable contract (client, db, limit,
// step_N, result) around a user-supplied code artifact. client and db are
// thin HTTP wrappers over the loopback Proxy rather than real network or
// database handles — the child process itself never sees Okta credentials
// or a database DSN, matching spec §4.5's "restricted globals" requirement.
var shimTemplate = template.Must(template.New("shim").Parse(`
import json
import urllib.request

_PROXY_ADDR = {{printf "%q" .ProxyAddr}}
_TOKEN = {{printf "%q" .Token}}
limit = {{.Limit}}


def _post(path, body):
    req = urllib.request.Request(
        "http://" + _PROXY_ADDR + path,
        data=json.dumps(body).encode("utf-8"),
        headers={"Content-Type": "application/json"},
        method="POST",
    )
    with urllib.request.urlopen(req, timeout=30) as resp:
        data = resp.read()
    return json.loads(data) if data else None


class _Client:
    def call(self, operation_id, **params):
        return _post("/call", {"token": _TOKEN, "operation_id": operation_id, "params": params})


class _DB:
    def query(self, sql):
        return _post("/sql", {"token": _TOKEN, "sql": sql})


def progress(percent, message=""):
    try:
        _post("/progress", {"token": _TOKEN, "percent": percent, "message": message})
    except Exception:
        pass


client = _Client()
db = _DB()

{{range $idx, $payload := .PriorSteps}}
step_{{$idx}} = json.loads({{printf "%q" $payload}})
{{end}}

result = None

{{.UserCode}}

print("` + resultSentinel + `")
print(json.dumps(result))
`))

func renderShim(p shimParams) (string, error) {
	var buf bytes.Buffer
	if err := shimTemplate.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}
