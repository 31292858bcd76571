package api_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/shuttle/internal/adapters/http/api"
	service "github.com/okian/shuttle/internal/app"
	"github.com/okian/shuttle/internal/domain/model"
	"github.com/okian/shuttle/internal/domain/types"
	"github.com/okian/shuttle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

func newRouter(deps api.Dependencies, maxLimit int) http.Handler {
	r := chi.NewRouter()
	api.NewServer(deps, maxLimit).Register(context.Background(), r)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.NewDecoder(w.Body).Decode(&v), ShouldBeNil)
	return v
}

func waitRated(svc *service.Service) {
	deadline := time.Now().Add(5 * time.Second)
	for svc.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAPI_EndToEnd(t *testing.T) {
	Convey("Given a router over a started service", t, func() {
		svc, err := service.New(service.WithWorkerCount(1), service.WithQueueSize(10))
		So(err, ShouldBeNil)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		h := newRouter(svc, 50)

		for _, body := range []string{
			`{"id":"lin","first_name":"Lin","last_name":"Dan"}`,
			`{"id":"lee","first_name":"Lee","last_name":"Chong Wei"}`,
		} {
			So(do(h, http.MethodPost, "/players", body).Code, ShouldEqual, http.StatusCreated)
		}

		Convey("When registering a player", func() {
			w := do(h, http.MethodPost, "/players", `{"first_name":"Viktor"}`)

			Convey("Then the player is created with the default rating", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				p := decode[model.Player](w)
				So(p.ID, ShouldNotBeEmpty)
				So(p.Rating.Rating, ShouldEqual, 1500)
				So(p.Rating.Deviation, ShouldEqual, 350)
			})

			Convey("Then invalid bodies are rejected", func() {
				So(do(h, http.MethodPost, "/players", `{"last_name":"X"}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodPost, "/players", `not json`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodPost, "/players", `{"first_name":"X","rating":9}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodPost, "/players", `{"id":"lin","first_name":"Lin"}`).Code, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When a match is posted", func() {
			body := `{"match_id":"m1","side1":["lin"],"side2":["lee"],"score1":21,"score2":17,"played_at":"2025-06-01T18:00:00Z"}`
			w := do(h, http.MethodPost, "/matches", body)

			Convey("Then it is accepted and rated", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				ack := decode[map[string]any](w)
				So(ack["status"], ShouldEqual, "accepted")
				So(ack["match_id"], ShouldEqual, "m1")
				waitRated(svc)

				lb := do(h, http.MethodGet, "/leaderboard?limit=10", "")
				So(lb.Code, ShouldEqual, http.StatusOK)
				entries := decode[[]types.Entry](lb)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].PlayerID, ShouldEqual, "lin")
				So(entries[0].Name, ShouldEqual, "Lin Dan")
				So(entries[0].Rating, ShouldAlmostEqual, 1600, 1e-9)

				rank := do(h, http.MethodGet, "/rank/lee", "")
				So(rank.Code, ShouldEqual, http.StatusOK)
				So(decode[types.Entry](rank).Rank, ShouldEqual, 2)

				hist := do(h, http.MethodGet, "/players/lin/matches?limit=5", "")
				So(hist.Code, ShouldEqual, http.StatusOK)
				recs := decode[[]model.MatchRecord](hist)
				So(len(recs), ShouldEqual, 1)
				So(recs[0].PlayedAt.Equal(time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)), ShouldBeTrue)

				st := do(h, http.MethodGet, "/players/lee/stats", "")
				So(st.Code, ShouldEqual, http.StatusOK)
				stats := decode[model.PlayerStats](st)
				So(stats.Losses, ShouldEqual, 1)

				exp := do(h, http.MethodGet, "/export.csv", "")
				So(exp.Code, ShouldEqual, http.StatusOK)
				So(exp.Header().Get("Content-Type"), ShouldStartWith, "text/csv")
				rows, err := csv.NewReader(exp.Body).ReadAll()
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 3)
				So(rows[1][1], ShouldEqual, "lin")
			})

			Convey("Then resubmitting it is acknowledged as a duplicate", func() {
				dup := do(h, http.MethodPost, "/matches", body)
				So(dup.Code, ShouldEqual, http.StatusOK)
				So(decode[map[string]any](dup)["duplicate"], ShouldEqual, true)
			})
		})

		Convey("When invalid matches are posted", func() {
			cases := []string{
				`{"side1":["lin"],"side2":["lee"],"score1":21}`,
				`{"side1":[],"side2":["lee"],"score1":21,"score2":3}`,
				`{"side1":["lin"],"side2":["lin"],"score1":21,"score2":3}`,
				`{"side1":["lin"],"side2":["lee"],"score1":-2,"score2":3}`,
				`{"side1":["lin"],"side2":["lee"],"score1":21,"score2":3,"played_at":"yesterday"}`,
				`{"side1":["lin"],"side2":["ghost"],"score1":21,"score2":3}`,
				`{"side1":["lin","a","b"],"side2":["lee"],"score1":21,"score2":3}`,
			}
			for _, body := range cases {
				So(do(h, http.MethodPost, "/matches", body).Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When reading unknown players", func() {
			So(do(h, http.MethodGet, "/players/ghost", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodGet, "/players/ghost/stats", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodGet, "/players/ghost/matches", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodGet, "/rank/ghost", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the leaderboard limit is invalid", func() {
			So(do(h, http.MethodGet, "/leaderboard", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/leaderboard?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/leaderboard?limit=51", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/players/lin/matches?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When reading a player and the service stats", func() {
			w := do(h, http.MethodGet, "/players/lin", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[model.Player](w).FirstName, ShouldEqual, "Lin")

			s := do(h, http.MethodGet, "/stats", "")
			So(s.Code, ShouldEqual, http.StatusOK)
			stats := decode[map[string]any](s)
			So(stats["started"], ShouldEqual, true)
			So(stats["players"], ShouldEqual, 2.0)
		})

		Convey("When scraping metrics", func() {
			_ = do(h, http.MethodGet, "/leaderboard?limit=1", "")
			for _, path := range []string{"/metrics", "/healthz"} {
				w := do(h, http.MethodGet, path, "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "shuttle_rating_http_requests_total")
			}
		})
	})
}

type failingDeps struct {
	*service.Service
}

func (failingDeps) SubmitMatch(context.Context, model.Match) (service.SubmitResult, error) {
	return service.SubmitResult{}, service.ErrBackpressure
}

func (failingDeps) TopN(context.Context, int) ([]types.Entry, error) {
	return nil, errors.New("disk on fire")
}

func (failingDeps) Export(context.Context, io.Writer) error {
	return errors.New("disk on fire")
}

func TestAPI_UpstreamErrors(t *testing.T) {
	Convey("Given dependencies that fail", t, func() {
		svc, err := service.New()
		So(err, ShouldBeNil)
		h := newRouter(failingDeps{svc}, 10)

		Convey("Then backpressure maps to 429", func() {
			w := do(h, http.MethodPost, "/matches", `{"side1":["a"],"side2":["b"],"score1":1,"score2":0}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decode[map[string]any](w)["code"], ShouldEqual, "backpressure")
		})

		Convey("Then unexpected errors map to 500", func() {
			So(do(h, http.MethodGet, "/leaderboard?limit=3", "").Code, ShouldEqual, http.StatusInternalServerError)
			So(do(h, http.MethodGet, "/export.csv", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Given kinded errors", t, func() {
		cause := errors.New("boom")

		So(errors.Is(api.NewKind("op", api.ErrBadRequest), api.ErrBadRequest), ShouldBeTrue)
		wrapped := api.WrapKind("op", api.ErrConflict, cause)
		So(errors.Is(wrapped, api.ErrConflict), ShouldBeTrue)
		So(errors.Is(wrapped, cause), ShouldBeTrue)
		So(wrapped.Error(), ShouldEqual, "op: conflict: boom")
		So(api.Wrap("op", nil), ShouldBeNil)
		So(errors.Is(api.Wrap("op", cause), cause), ShouldBeTrue)
	})
}
