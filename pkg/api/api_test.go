package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nimburion/storefront/pkg/auth"
	"github.com/nimburion/storefront/pkg/catalog"
	"github.com/nimburion/storefront/pkg/controller"
	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/middleware/requestid"
	"github.com/nimburion/storefront/pkg/realtime/sse"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/server/router"
	ginadapter "github.com/nimburion/storefront/pkg/server/router/gin"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testAPI struct {
	t       *testing.T
	handler http.Handler
	tokens  *auth.TokenService
}

func newTestAPI(t *testing.T, authEnabled bool) *testAPI {
	return newTestAPIWithFeed(t, authEnabled, nil)
}

// newTestAPIWithFeed also streams catalog events through feed when it is not
// nil.
func newTestAPIWithFeed(t *testing.T, authEnabled bool, feed *sse.Manager) *testAPI {
	t.Helper()
	var mu sync.Mutex
	n := 0
	store := document.NewMemoryStore(document.WithIDGenerator(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id%03d", n)
	}))
	t.Cleanup(func() { _ = store.Close() })

	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: testSecret, Issuer: "storefront", TTL: time.Hour}, nil)
	if err != nil {
		t.Fatal(err)
	}
	catOpts := []catalog.Option{
		catalog.WithTokens(tokens),
		catalog.WithHasher(auth.BcryptHasher{Cost: bcrypt.MinCost}),
	}
	opts := Options{AuthEnabled: authEnabled, Validator: tokens}
	if feed != nil {
		catOpts = append(catOpts, catalog.WithPublisher(eventbus.NewPublisher(nil, "", "storefront", nil, eventbus.WithObserver(feed.Observe))))
		if opts.Feed, err = sse.NewHandler(feed); err != nil {
			t.Fatal(err)
		}
	}
	cat := catalog.New(store, catalog.DefaultConfig(), nil, catOpts...)

	r := ginadapter.NewRouter(router.WithErrorHandler(controller.WriteError))
	r.Use(requestid.RequestID(), controller.WriteErrors())
	Register(r, cat, opts, nil)
	return &testAPI{t: t, handler: r, tokens: tokens}
}

type response struct {
	Status int
	Body   map[string]any
}

func (a *testAPI) do(method, path, token string, body any) response {
	a.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			a.t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	out := response{Status: rec.Code}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out.Body); err != nil {
			a.t.Fatalf("%s %s: invalid JSON body %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return out
}

func (a *testAPI) token(id, email, role string) string {
	a.t.Helper()
	tok, _, err := a.tokens.Issue(id, email, role)
	if err != nil {
		a.t.Fatal(err)
	}
	return tok
}

func data(t *testing.T, r response) map[string]any {
	t.Helper()
	d, ok := r.Body["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", r.Body)
	}
	return d
}

func list(t *testing.T, r response) []any {
	t.Helper()
	d, ok := r.Body["data"].([]any)
	if !ok {
		t.Fatalf("response has no data list: %v", r.Body)
	}
	return d
}

var customer = map[string]any{
	"fullName":      "John Doe",
	"contactNumber": "5550001111",
	"email":         "john@example.com",
	"password":      "hunter22",
	"role":          "customer",
	"location":      "12 Main Street",
}

func teeShirt(stocks ...string) map[string]any {
	variants := make([]any, 0, len(stocks))
	for _, s := range stocks {
		variants = append(variants, map[string]any{
			"price":    9.99,
			"quantity": map[string]any{"value": 1, "unit": "pc"},
			"stock":    s,
			"status":   "AVAILABLE",
		})
	}
	return map[string]any{
		"name":            "Cotton Tee",
		"manufacturer":    "Acme Apparel",
		"category":        "clothing",
		"description":     "A plain tee",
		"features":        "100% cotton",
		"subCategories":   []any{"tops"},
		"subCategoryItem": []any{"t-shirts"},
		"life":            "2 years",
		"rating":          4.5,
		"taxable":         true,
		"variants":        variants,
	}
}

func TestSignUpAndLogin(t *testing.T) {
	a := newTestAPI(t, true)

	created := a.do(http.MethodPost, "/v1/users", "", customer)
	if created.Status != http.StatusCreated {
		t.Fatalf("sign up status = %d body %v", created.Status, created.Body)
	}
	user := data(t, created)
	if user["id"] == "" || user["password"] != nil {
		t.Fatalf("unexpected user body %v", user)
	}

	login := a.do(http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "JOHN@example.com", "password": "hunter22"})
	if login.Status != http.StatusOK {
		t.Fatalf("login status = %d body %v", login.Status, login.Body)
	}
	session := data(t, login)
	if session["userId"] != user["id"] || session["role"] != catalog.RoleCustomer || session["token"] == "" {
		t.Fatalf("unexpected session %v", session)
	}

	bad := a.do(http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "john@example.com", "password": "wrong-password"})
	if bad.Status != http.StatusUnauthorized || bad.Body["code"] != string(document.Unauthorized) {
		t.Fatalf("bad login = %d %v", bad.Status, bad.Body)
	}

	dup := a.do(http.MethodPost, "/v1/users", "", customer)
	if dup.Status != http.StatusConflict {
		t.Fatalf("duplicate sign up status = %d", dup.Status)
	}
}

func TestSignUp_InvalidBody(t *testing.T) {
	a := newTestAPI(t, true)

	missing := a.do(http.MethodPost, "/v1/users", "", map[string]any{"email": "x@example.com"})
	if missing.Status != http.StatusBadRequest || missing.Body["code"] != string(document.InvalidArgument) {
		t.Fatalf("missing fields = %d %v", missing.Status, missing.Body)
	}
	malformed := a.do(http.MethodPost, "/v1/users", "", `{"email":`)
	if malformed.Status != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", malformed.Status)
	}
}

func TestRoleChecks(t *testing.T) {
	a := newTestAPI(t, true)
	customerToken := a.token("u1", "john@example.com", catalog.RoleCustomer)
	managerToken := a.token("m1", "mia@example.com", catalog.RoleStoreManager)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{name: "list users without token", method: http.MethodGet, path: "/v1/users", want: http.StatusUnauthorized},
		{name: "list users with garbage token", method: http.MethodGet, path: "/v1/users", token: "garbage", want: http.StatusUnauthorized},
		{name: "list users as customer", method: http.MethodGet, path: "/v1/users", token: customerToken, want: http.StatusForbidden},
		{name: "list users as manager", method: http.MethodGet, path: "/v1/users", token: managerToken, want: http.StatusOK},
		{name: "create product as customer", method: http.MethodPost, path: "/v1/products", token: customerToken, body: teeShirt("S"), want: http.StatusForbidden},
		{name: "update another user", method: http.MethodPatch, path: "/v1/users/u2", token: customerToken, body: map[string]any{"fullName": "X"}, want: http.StatusForbidden},
		{name: "reset another password", method: http.MethodPost, path: "/v1/users/u2/password", token: managerToken, body: map[string]any{}, want: http.StatusForbidden},
		{name: "list products is public", method: http.MethodGet, path: "/v1/products", want: http.StatusOK},
		{name: "search is public", method: http.MethodGet, path: "/v1/search/products?q=tee", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.do(tt.method, tt.path, tt.token, tt.body)
			if got.Status != tt.want {
				t.Fatalf("status = %d, want %d (body %v)", got.Status, tt.want, got.Body)
			}
		})
	}
}

func TestCollectionAccess(t *testing.T) {
	a := newTestAPI(t, true)
	id := data(t, a.do(http.MethodPost, "/v1/users", "", customer))["id"].(string)
	self := a.token(id, "john@example.com", catalog.RoleCustomer)
	other := a.token("u9", "jane@example.com", catalog.RoleCustomer)
	manager := a.token("m1", "mia@example.com", catalog.RoleStoreManager)
	delivery := a.token("d1", "dan@example.com", catalog.RoleDelivery)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "search users anonymous", path: "/v1/search/users?q=john", want: http.StatusUnauthorized},
		{name: "search users as customer", path: "/v1/search/users?q=john", token: self, want: http.StatusForbidden},
		{name: "search users as manager", path: "/v1/search/users?q=john", token: manager, want: http.StatusOK},
		{name: "search orders anonymous", path: "/v1/search/orders?q=a", want: http.StatusUnauthorized},
		{name: "search orders as customer", path: "/v1/search/orders?q=a", token: self, want: http.StatusForbidden},
		{name: "search orders as delivery", path: "/v1/search/orders?q=a", token: delivery, want: http.StatusOK},
		{name: "search categories anonymous", path: "/v1/search/categories?q=a", want: http.StatusOK},
		{name: "search unknown collection", path: "/v1/search/widgets?q=a", want: http.StatusBadRequest},
		{name: "user document anonymous", path: "/v1/documents/users/" + id, want: http.StatusUnauthorized},
		{name: "user document as self", path: "/v1/documents/users/" + id, token: self, want: http.StatusOK},
		{name: "user document as other customer", path: "/v1/documents/users/" + id, token: other, want: http.StatusForbidden},
		{name: "user document as manager", path: "/v1/documents/users/" + id, token: manager, want: http.StatusOK},
		{name: "order document as customer", path: "/v1/documents/orders/x", token: self, want: http.StatusForbidden},
		{name: "product document anonymous", path: "/v1/documents/products/x", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.do(http.MethodGet, tt.path, tt.token, nil)
			if got.Status != tt.want {
				t.Fatalf("status = %d, want %d (body %v)", got.Status, tt.want, got.Body)
			}
		})
	}

	found := a.do(http.MethodGet, "/v1/search/users?q=john", manager, nil)
	if hits := list(t, found); len(hits) != 1 {
		t.Fatalf("manager search = %v", found.Body)
	}
}

func TestAuthEnabledWithoutValidator(t *testing.T) {
	store := document.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	r := ginadapter.NewRouter(router.WithErrorHandler(controller.WriteError))
	r.Use(controller.WriteErrors())
	Register(r, catalog.New(store, catalog.DefaultConfig(), nil), Options{AuthEnabled: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateProduct_ReturnsLinkedGroup(t *testing.T) {
	a := newTestAPI(t, true)
	manager := a.token("m1", "mia@example.com", catalog.RoleStoreManager)

	created := a.do(http.MethodPost, "/v1/products", manager, teeShirt("S", "M", "L"))
	if created.Status != http.StatusCreated {
		t.Fatalf("status = %d body %v", created.Status, created.Body)
	}
	group := data(t, created)
	ids, _ := group["ids"].([]any)
	if group["groupId"] == "" || len(ids) != 3 || group["state"] != "complete" {
		t.Fatalf("unexpected group %v", group)
	}

	for _, raw := range ids {
		id := raw.(string)
		got := a.do(http.MethodGet, "/v1/documents/products/"+id, manager, nil)
		if got.Status != http.StatusOK {
			t.Fatalf("get %s = %d", id, got.Status)
		}
		siblings, _ := data(t, got)["variants"].([]any)
		if len(siblings) != 3 {
			t.Fatalf("product %s siblings = %v", id, siblings)
		}
	}

	found := a.do(http.MethodGet, "/v1/search/products?q=COT", "", nil)
	if found.Status != http.StatusOK || len(list(t, found)) != 3 {
		t.Fatalf("search = %d %v", found.Status, found.Body)
	}
	limited := a.do(http.MethodGet, "/v1/search/products?q=cot&limit=2", "", nil)
	if len(list(t, limited)) != 2 {
		t.Fatalf("limited search = %v", limited.Body)
	}
}

func TestCreateProduct_NoVariants(t *testing.T) {
	a := newTestAPI(t, false)
	got := a.do(http.MethodPost, "/v1/products", "", teeShirt())
	if got.Status != http.StatusBadRequest {
		t.Fatalf("status = %d body %v", got.Status, got.Body)
	}
}

func TestListStores_Pagination(t *testing.T) {
	a := newTestAPI(t, false)
	var ids []string
	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		got := a.do(http.MethodPost, "/v1/stores", "", map[string]any{
			"name":         name,
			"location":     "Main Street",
			"products":     []any{},
			"storeManager": map[string]any{"id": "m1", "name": "Mia"},
		})
		if got.Status != http.StatusCreated {
			t.Fatalf("create %s = %d %v", name, got.Status, got.Body)
		}
		ids = append(ids, data(t, got)["id"].(string))
	}

	first := a.do(http.MethodGet, "/v1/stores?page_size=2", "", nil)
	if first.Status != http.StatusOK || len(list(t, first)) != 2 || first.Body["last"] != ids[1] {
		t.Fatalf("first page = %d %v", first.Status, first.Body)
	}
	next := a.do(http.MethodGet, "/v1/stores?page_size=2&direction=forward&cursor="+ids[1], "", nil)
	page := list(t, next)
	if len(page) != 2 || page[0].(map[string]any)["id"] != ids[1] || page[1].(map[string]any)["id"] != ids[2] {
		t.Fatalf("forward page = %v", next.Body)
	}
	prev := a.do(http.MethodGet, "/v1/stores?page_size=1&direction=backward&cursor="+ids[1], "", nil)
	page = list(t, prev)
	if len(page) != 1 || page[0].(map[string]any)["id"] != ids[1] {
		t.Fatalf("backward page = %v", prev.Body)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "missing cursor", path: "/v1/stores?cursor=nope&direction=forward", want: http.StatusNotFound},
		{name: "bad direction", path: "/v1/stores?cursor=" + ids[0] + "&direction=sideways", want: http.StatusBadRequest},
		{name: "bad page size", path: "/v1/stores?page_size=ten", want: http.StatusBadRequest},
		{name: "negative page size", path: "/v1/stores?page_size=-1", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.do(http.MethodGet, tt.path, "", nil); got.Status != tt.want {
				t.Fatalf("status = %d, want %d (%v)", got.Status, tt.want, got.Body)
			}
		})
	}
}

func TestCategories(t *testing.T) {
	a := newTestAPI(t, false)

	parent := a.do(http.MethodPost, "/v1/categories/category", "", map[string]any{"name": "Clothing"})
	if parent.Status != http.StatusCreated {
		t.Fatalf("create category = %d %v", parent.Status, parent.Body)
	}
	parentID := data(t, parent)["id"].(string)

	orphan := a.do(http.MethodPost, "/v1/categories/subcategory", "", map[string]any{"name": "Tops", "parent": "missing"})
	if orphan.Status != http.StatusNotFound && orphan.Status != http.StatusBadRequest {
		t.Fatalf("orphan subcategory = %d %v", orphan.Status, orphan.Body)
	}
	child := a.do(http.MethodPost, "/v1/categories/subcategory", "", map[string]any{"name": "Tops", "parent": parentID})
	if child.Status != http.StatusCreated {
		t.Fatalf("create subcategory = %d %v", child.Status, child.Body)
	}

	children := a.do(http.MethodGet, "/v1/categories/subcategory?parent="+parentID, "", nil)
	if len(list(t, children)) != 1 {
		t.Fatalf("children = %v", children.Body)
	}
	if got := a.do(http.MethodGet, "/v1/categories/shelves", "", nil); got.Status != http.StatusBadRequest {
		t.Fatalf("unknown kind = %d", got.Status)
	}

	childID := data(t, child)["id"].(string)
	if got := a.do(http.MethodDelete, "/v1/categories/subcategory/"+childID, "", nil); got.Status != http.StatusNoContent {
		t.Fatalf("delete = %d %v", got.Status, got.Body)
	}
	if got := a.do(http.MethodDelete, "/v1/categories/subcategory/"+childID, "", nil); got.Status != http.StatusNotFound {
		t.Fatalf("second delete = %d", got.Status)
	}
}

func TestOffers_Retire(t *testing.T) {
	a := newTestAPI(t, false)
	offer := map[string]any{"name": "Spring", "code": "SPRING10", "discount": 10, "unit": "%"}

	created := a.do(http.MethodPost, "/v1/offers", "", offer)
	if created.Status != http.StatusCreated {
		t.Fatalf("create offer = %d %v", created.Status, created.Body)
	}
	if dup := a.do(http.MethodPost, "/v1/offers", "", offer); dup.Status != http.StatusConflict {
		t.Fatalf("duplicate offer = %d", dup.Status)
	}
	id := data(t, created)["id"].(string)
	if got := a.do(http.MethodPost, "/v1/offers/"+id+"/retire", "", nil); got.Status != http.StatusNoContent {
		t.Fatalf("retire = %d %v", got.Status, got.Body)
	}
	if got := a.do(http.MethodPost, "/v1/offers/nope/retire", "", nil); got.Status != http.StatusNotFound {
		t.Fatalf("retire missing = %d", got.Status)
	}
}

func TestUpdateUser_PatchSemantics(t *testing.T) {
	a := newTestAPI(t, true)
	created := a.do(http.MethodPost, "/v1/users", "", customer)
	id := data(t, created)["id"].(string)
	self := a.token(id, "john@example.com", catalog.RoleCustomer)

	got := a.do(http.MethodPatch, "/v1/users/"+id, self, map[string]any{"fullName": "Johnny Doe"})
	if got.Status != http.StatusOK || data(t, got)["fullName"] != "Johnny Doe" {
		t.Fatalf("patch = %d %v", got.Status, got.Body)
	}
	if arr := a.do(http.MethodPatch, "/v1/users/"+id, self, `["fullName"]`); arr.Status != http.StatusBadRequest {
		t.Fatalf("array patch = %d", arr.Status)
	}

	manager := a.token("m1", "mia@example.com", catalog.RoleStoreManager)
	found := a.do(http.MethodGet, "/v1/search/users?q=johnny", manager, nil)
	if len(list(t, found)) != 1 {
		t.Fatalf("search after rename = %v", found.Body)
	}
}

func TestResetPassword(t *testing.T) {
	a := newTestAPI(t, true)
	id := data(t, a.do(http.MethodPost, "/v1/users", "", customer))["id"].(string)
	self := a.token(id, "john@example.com", catalog.RoleCustomer)
	path := "/v1/users/" + id + "/password"

	wrong := a.do(http.MethodPost, path, self, map[string]any{"oldPassword": "nothunter", "password": "newsecret"})
	if wrong.Status != http.StatusUnauthorized {
		t.Fatalf("wrong old password = %d %v", wrong.Status, wrong.Body)
	}
	ok := a.do(http.MethodPost, path, self, map[string]any{"oldPassword": "hunter22", "password": "newsecret"})
	if ok.Status != http.StatusNoContent {
		t.Fatalf("reset = %d %v", ok.Status, ok.Body)
	}
	login := a.do(http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "john@example.com", "password": "newsecret"})
	if login.Status != http.StatusOK {
		t.Fatalf("login with new password = %d", login.Status)
	}
}

func TestDocuments_Errors(t *testing.T) {
	a := newTestAPI(t, false)
	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "unknown collection", path: "/v1/documents/widgets/x", want: http.StatusBadRequest},
		{name: "missing record", path: "/v1/documents/products/x", want: http.StatusNotFound},
		{name: "search unknown collection", path: "/v1/search/widgets?q=a", want: http.StatusBadRequest},
		{name: "search bad limit", path: "/v1/search/products?q=a&limit=many", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.do(http.MethodGet, tt.path, "", nil)
			if got.Status != tt.want {
				t.Fatalf("status = %d, want %d (%v)", got.Status, tt.want, got.Body)
			}
			if got.Body["request_id"] == "" {
				t.Fatalf("error body misses request id: %v", got.Body)
			}
		})
	}
}
