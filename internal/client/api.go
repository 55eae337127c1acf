package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/model"
)

// maxResponseBytes はレスポンスボディの読み取り上限。
const maxResponseBytes = 4 << 20

// Error はAPIが返したエラーレスポンス。
type Error struct {
	StatusCode int    `json:"-"`
	Kind       string `json:"error"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("taskboard API: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("taskboard API: %d %s: %s", e.StatusCode, e.Kind, e.Message)
}

// HealthStatus は /api/public/health のレスポンス。
type HealthStatus struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
	Database  string  `json:"database,omitempty"`
}

// Profile は /api/secure/profile のレスポンス。
type Profile struct {
	KeycloakInfo auth.Claims `json:"keycloakInfo"`
	DBProfile    model.User  `json:"dbProfile"`
}

// ProfileUpdate はプロフィール更新のリクエスト。nilのフィールドは送信しない。
type ProfileUpdate struct {
	FirstName   *string           `json:"firstName,omitempty"`
	LastName    *string           `json:"lastName,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// TaskRequest はタスク作成・更新のリクエスト。
// 更新時は空でないフィールドのみ反映される。DueDateはRFC3339またはYYYY-MM-DD。
type TaskRequest struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	AssignedTo  string `json:"assignedTo,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
}

// API はtaskboard APIのクライアント。
// 認証が必要なリクエストにはSessionのトークンをBearerとして付与する。
type API struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
}

// NewAPI はAPIクライアントを生成する。httpClientがnilの場合はhttp.DefaultClientを使う。
// sessionはnilでもよく、その場合は公開エンドポイントのみ呼び出せる。
func NewAPI(baseURL string, httpClient *http.Client, session *Session) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		session:    session,
	}
}

// --- 公開エンドポイント ---

// Public は公開エンドポイントの情報を返す。
func (a *API) Public(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := a.do(ctx, http.MethodGet, "/api/public", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health はサーバーの稼働状況を返す。DBに到達できない場合は503の*Errorを返す。
func (a *API) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := a.do(ctx, http.MethodGet, "/api/public/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- 認証が必要なエンドポイント ---

// Secure はサーバー側で検証されたClaimsを返す。
func (a *API) Secure(ctx context.Context) (*auth.Claims, error) {
	var out struct {
		User auth.Claims `json:"user"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/secure", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Profile はClaimsとDB上のプロフィールを返す。未作成の場合はサーバー側で作成される。
func (a *API) Profile(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := a.do(ctx, http.MethodGet, "/api/secure/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile はプロフィールを更新し、更新後のユーザーを返す。
func (a *API) UpdateProfile(ctx context.Context, update ProfileUpdate) (*model.User, error) {
	var out struct {
		Profile model.User `json:"profile"`
	}
	if err := a.do(ctx, http.MethodPut, "/api/secure/profile", update, &out); err != nil {
		return nil, err
	}
	return &out.Profile, nil
}

// Tasks は自分のタスク一覧を返す。statusが空の場合は絞り込まない。
func (a *API) Tasks(ctx context.Context, status model.TaskStatus) ([]model.Task, error) {
	var out struct {
		Tasks []model.Task `json:"tasks"`
	}
	path := "/api/secure/tasks" + query("status", string(status))
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// CreateTask はタスクを作成する。
func (a *API) CreateTask(ctx context.Context, req TaskRequest) (*model.Task, error) {
	return a.taskCall(ctx, http.MethodPost, "/api/secure/tasks", req)
}

// UpdateTask はタスクを部分更新する。
func (a *API) UpdateTask(ctx context.Context, id string, req TaskRequest) (*model.Task, error) {
	return a.taskCall(ctx, http.MethodPut, "/api/secure/tasks/"+url.PathEscape(id), req)
}

// DeleteTask はタスクを削除し、削除したタスクを返す。
func (a *API) DeleteTask(ctx context.Context, id string) (*model.Task, error) {
	return a.taskCall(ctx, http.MethodDelete, "/api/secure/tasks/"+url.PathEscape(id), nil)
}

func (a *API) taskCall(ctx context.Context, method, path string, body any) (*model.Task, error) {
	var out struct {
		Task model.Task `json:"task"`
	}
	if err := a.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out.Task, nil
}

// --- 管理者エンドポイント ---

// Users は全ユーザーを返す。adminロールが必要。
func (a *API) Users(ctx context.Context) ([]model.User, error) {
	var out struct {
		Users []model.User `json:"users"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/secure/admin/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// AllTasks は全ユーザーのタスクを返す。ownerを指定するとそのユーザーのタスクに絞り込む。
func (a *API) AllTasks(ctx context.Context, status model.TaskStatus, owner string) ([]model.Task, error) {
	var out struct {
		Tasks []model.Task `json:"tasks"`
	}
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if owner != "" {
		q.Set("owner", owner)
	}
	path := "/api/secure/admin/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// Stats はユーザー数とタスク数の集計を返す。
func (a *API) Stats(ctx context.Context) (*model.Stats, error) {
	var out struct {
		Stats model.Stats `json:"stats"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/secure/admin/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out.Stats, nil
}

// DeleteUser はユーザーとそのタスクを削除し、削除したユーザーを返す。
func (a *API) DeleteUser(ctx context.Context, id string) (*model.User, error) {
	var out struct {
		User model.User `json:"user"`
	}
	if err := a.do(ctx, http.MethodDelete, "/api/secure/admin/users/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func query(key, value string) string {
	if value == "" {
		return ""
	}
	return "?" + url.Values{key: {value}}.Encode()
}

// do はリクエストを送信し、2xxの場合はレスポンスをoutにデコードする。
// それ以外のステータスは*Errorとして返す。
func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := a.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s の呼び出しに失敗しました: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		// エラーボディが統一フォーマットでない場合はステータスのみ返す
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
