package cmd

import (
	"context"
	"net/http"

	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/net/ghttp"
	"github.com/gogf/gf/v2/os/gcmd"
	"github.com/gogf/gf/v2/text/gstr"

	"github.com/Malowking/textverse/internal/controller/textverse"
)

var (
	Main = gcmd.Command{
		Name:  "textverse",
		Usage: "textverse [index]",
		Brief: "start http server",
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			conf, err := loadConfig(ctx)
			if err != nil {
				g.Log().Fatalf(ctx, "Configuration validation failed:\n%v", err)
			}
			a, err := bootstrap(ctx, conf)
			if err != nil {
				g.Log().Fatalf(ctx, "Startup failed: %v", err)
			}
			defer a.Close(ctx)

			s := g.Server()
			s.SetAddr(conf.Server.Address)
			registerRoutes(s, a.pipeline)
			s.Run()
			return nil
		},
	}

	Index = gcmd.Command{
		Name:  "index",
		Usage: "textverse index --source <path|url|s3://bucket/prefix>[,...] [--output dir] [--rebuild]",
		Brief: "build or extend the vector index from documents",
		Arguments: []gcmd.Argument{
			{Name: "source", Short: "s", Brief: "file, directory, http(s) URL or s3://bucket/prefix; comma separated"},
			{Name: "output", Short: "o", Brief: "index directory, overrides index.path"},
			{Name: "rebuild", Short: "r", Brief: "delete the existing local index first", Orphan: true},
		},
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			conf, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			res, err := buildIndex(ctx, conf, indexOptionsFrom(parser))
			if err != nil {
				return err
			}
			g.Log().Infof(ctx, "Indexing finished: %d sources, %d chunks, %d skipped", res.Sources, res.Chunks, res.Skipped)
			return nil
		},
	}
)

func init() {
	if err := Main.AddCommand(&Index); err != nil {
		panic(err)
	}
}

func indexOptionsFrom(parser *gcmd.Parser) indexOptions {
	return indexOptions{
		Sources: gstr.SplitAndTrim(parser.GetOpt("source").String(), ","),
		Output:  parser.GetOpt("output").String(),
		Rebuild: parser.GetOpt("rebuild") != nil,
	}
}

// registerRoutes binds the API onto s. CORS is open to every origin.
func registerRoutes(s *ghttp.Server, answerer textverse.Answerer) {
	s.Group("/", func(group *ghttp.RouterGroup) {
		group.Middleware(MiddlewareJSONResponse, ghttp.MiddlewareCORS)
		group.Bind(
			textverse.NewV1(answerer),
		)
	})
	s.BindStatusHandler(http.StatusNotFound, statusNotFound)
}
