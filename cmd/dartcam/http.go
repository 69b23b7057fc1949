package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"
	"goa.design/goa/v3/middleware"

	"dartcam/internal/auth"
	"dartcam/internal/logger"
	authmw "dartcam/internal/middleware"
	"dartcam/internal/services"
)

// handleHTTPServer configures and starts an HTTP server on the given URL. It
// shuts down the server when ctx is cancelled.
func handleHTTPServer(ctx context.Context, u *url.URL, srv *services.Server, authenticator *auth.Authenticator, wg *sync.WaitGroup, errc chan error, debug bool) {
	std := logger.Std("[http] ")

	var adapter middleware.Logger
	{
		adapter = middleware.NewLogger(std)
	}

	var mux goahttp.Muxer
	{
		mux = goahttp.NewMuxer()
	}
	srv.Mount(mux)

	var handler http.Handler = mux
	{
		if debug {
			handler = httpmdlwr.Debug(mux, os.Stdout)(handler)
		}
		handler = authmw.AuthMiddleware(authenticator, services.PublicPaths...)(handler)
		handler = httpmdlwr.Log(adapter)(handler)
		handler = httpmdlwr.RequestID()(handler)
	}

	// No WriteTimeout: the preview stream and the calibrate call hold the
	// response open.
	server := &http.Server{Addr: u.Host, Handler: handler, ReadHeaderTimeout: 60 * time.Second}
	for _, m := range srv.Mounts {
		logger.Debug(logger.Fields{"method": m.Method, "verb": m.Verb, "pattern": m.Pattern}, "[HTTP] mounted")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			logger.Info(logger.Fields{"addr": u.Host}, "[HTTP] server listening")
			errc <- server.ListenAndServe()
		}()

		<-ctx.Done()
		logger.Info(logger.Fields{"addr": u.Host}, "[HTTP] shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Warn(logger.Fields{"error": err.Error()}, "[HTTP] failed to shutdown")
		}
	}()
}
