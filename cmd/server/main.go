package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/kfchess/kfchess-server/internal/config"
	"github.com/kfchess/kfchess-server/internal/controller"
	"github.com/kfchess/kfchess-server/internal/middleware"
	"github.com/kfchess/kfchess-server/internal/model"
	"github.com/kfchess/kfchess-server/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	boardCfg := model.DefaultBoardConfig()
	if cfg.BoardConfigPath != "" {
		boardCfg, err = model.LoadBoardConfig(cfg.BoardConfigPath)
		if err != nil {
			log.Fatalf("load board config: %v", err)
		}
	}

	// services
	gameManager := service.NewGameManager(boardCfg, cfg.TickInterval, cfg.MaxGames)
	gameService := service.NewGameService(gameManager)
	go gameManager.MaintainGames(time.Minute)

	// controllers
	gameController := controller.NewGameController(gameService)
	wsController := controller.NewWebSocketController(gameService, cfg)

	app := fiber.New()
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	api := app.Group("/api")
	api.Get("/games", gameController.ListGames)
	api.Get("/game/:gameId", gameController.GetGameState)

	app.Use("/ws", middleware.WebSocketUpgrade())
	app.Get("/ws", websocket.New(wsController.HandleConnection, websocket.Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}))

	log.Printf("listening on %s", cfg.Addr())
	log.Fatal(app.Listen(cfg.Addr()))
}
