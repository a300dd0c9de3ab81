package main

import (
	"net/http"

	config "github.com/nplanner/smm-publisher/configuration"
	dal "github.com/nplanner/smm-publisher/dal"
	handlers "github.com/nplanner/smm-publisher/handlers"
	log "github.com/sirupsen/logrus"
)

func main() {
	config.GetEnvConfigs()
	cms := dal.DefaultDirectusClient()
	controllers := handlers.NewControllers(cms)

	log.Printf("publishing core listening on :8080")
	log.Fatal(http.ListenAndServe(":8080", controllers.Routes()))
}
