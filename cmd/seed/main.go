package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/models"
	"github.com/nodewarden/warden/internal/services"
)

func main() {
	// Connect to database
	db, err := gorm.Open(sqlite.Open("./data/warden.db"), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.AutomationRule{},
		&models.RuleExecutionLog{},
		&models.User{},
		&models.Node{},
		&models.UserNodeTraffic{},
		&models.Admin{},
		&models.Setting{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	fmt.Println("✓ Database migrated successfully")

	now := time.Now()
	soon := now.Add(14 * 24 * time.Hour)
	lapsed := now.Add(-40 * 24 * time.Hour)

	// Seed managed users
	users := []models.User{
		{
			ID:           uuid.NewString(),
			Username:     "alice",
			Status:       models.UserActive,
			Online:       true,
			LastOnlineAt: &now,
			ExpireAt:     &soon,
			TrafficUsed:  80 << 30,
			TrafficLimit: 100 << 30,
			TrafficToday: 2 << 30,
		},
		{
			ID:           uuid.NewString(),
			Username:     "bob",
			Status:       models.UserActive,
			Online:       false,
			ExpireAt:     &lapsed,
			TrafficUsed:  12 << 30,
			TrafficLimit: 50 << 30,
		},
		{
			ID:          uuid.NewString(),
			Username:    "mallory",
			Status:      models.UserBlocked,
			BlockReason: "repeated protocol violations",
			TrafficUsed: 5 << 30,
		},
	}

	for _, user := range users {
		result := db.Where("username = ?", user.Username).FirstOrCreate(&user)
		if result.Error != nil {
			log.Printf("Failed to seed user %s: %v", user.Username, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created user: %s (%s)\n", user.Username, user.Status)
		} else {
			fmt.Printf("  User already exists: %s\n", user.Username)
		}
	}

	// Seed nodes
	nodes := []models.Node{
		{
			ID:            uuid.NewString(),
			Name:          "edge-fra-1",
			Address:       "10.0.1.10",
			Status:        models.NodeOnline,
			UptimePercent: 99.92,
			ContainerName: "warden-node-fra-1",
			LastSeenAt:    &now,
		},
		{
			ID:            uuid.NewString(),
			Name:          "edge-ams-1",
			Address:       "10.0.2.10",
			Status:        models.NodeOnline,
			UptimePercent: 97.4,
			LastSeenAt:    &now,
		},
		{
			ID:            uuid.NewString(),
			Name:          "edge-sgp-1",
			Address:       "10.0.3.10",
			Status:        models.NodeOffline,
			UptimePercent: 88.1,
		},
	}

	for _, node := range nodes {
		result := db.Where("name = ?", node.Name).FirstOrCreate(&node)
		if result.Error != nil {
			log.Printf("Failed to seed node %s: %v", node.Name, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created node: %s (%s)\n", node.Name, node.Status)
		} else {
			fmt.Printf("  Node already exists: %s\n", node.Name)
		}
	}

	// Seed today's per-node traffic for the first user on the first node
	var alice models.User
	var fra models.Node
	if db.First(&alice, "username = ?", "alice").Error == nil &&
		db.First(&fra, "name = ?", "edge-fra-1").Error == nil {
		row := models.UserNodeTraffic{
			UserID:    alice.ID,
			NodeID:    fra.ID,
			Day:       models.TrafficDay(now),
			UsedBytes: 2 << 30,
		}
		result := db.Where("user_id = ? AND node_id = ? AND day = ?", row.UserID, row.NodeID, row.Day).
			FirstOrCreate(&row)
		if result.Error != nil {
			log.Printf("Failed to seed traffic row: %v", result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created traffic row: %s on %s (%s)\n", alice.Username, fra.Name, row.Day)
		}
	}

	// Seed settings
	settings := []models.Setting{
		{
			Key:      "app_name",
			Value:    "Warden",
			Type:     "string",
			Category: "general",
		},
		{
			Key:      models.SettingTelegramBotToken,
			Value:    "",
			Type:     "string",
			Category: "notifications",
		},
		{
			Key:      models.SettingTelegramChatID,
			Value:    "",
			Type:     "string",
			Category: "notifications",
		},
	}

	for _, setting := range settings {
		result := db.Where("key = ?", setting.Key).FirstOrCreate(&setting)
		if result.Error != nil {
			log.Printf("Failed to seed setting %s: %v", setting.Key, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created setting: %s\n", setting.Key)
		} else {
			fmt.Printf("  Setting already exists: %s\n", setting.Key)
		}
	}

	// Activate a couple of starter rules from the template catalog.
	rules := services.NewRuleService(db)
	templates := services.NewTemplateService(rules)
	for _, id := range []string{"auto-disable-violators", "nightly-expired-cleanup"} {
		var count int64
		tpl, err := templates.Get(id)
		if err != nil {
			log.Printf("Unknown template %s: %v", id, err)
			continue
		}
		db.Model(&models.AutomationRule{}).Where("name = ?", tpl.Name).Count(&count)
		if count > 0 {
			fmt.Printf("  Rule already exists: %s\n", tpl.Name)
			continue
		}
		rule, err := templates.Activate(id)
		if err != nil {
			log.Printf("Failed to activate template %s: %v", id, err)
			continue
		}
		fmt.Printf("✓ Created rule from template: %s (disabled until reviewed)\n", rule.Name)
	}

	// Seed default admin
	defaultAdminEmail := os.Getenv("WARDEN_ADMIN_EMAIL")
	if defaultAdminEmail == "" {
		defaultAdminEmail = "admin@localhost"
	}
	defaultAdminPassword := os.Getenv("WARDEN_ADMIN_PASSWORD")
	forceAdmin := os.Getenv("WARDEN_FORCE_DEFAULT_ADMIN") == "1"

	admin := models.Admin{
		ID:    uuid.NewString(),
		Email: defaultAdminEmail,
		Name:  "Administrator",
		Role:  "admin",
	}

	// If a default password provided, use SetPassword to generate a proper bcrypt hash
	if defaultAdminPassword != "" {
		if err := admin.SetPassword(defaultAdminPassword); err != nil {
			log.Printf("Failed to hash default admin password: %v", err)
		}
	} else {
		// Placeholder hash, not loginable until reset-password is run
		admin.PasswordHash = "$2a$10$example_hashed_password"
	}

	var existing models.Admin
	if err := db.Where("email = ?", admin.Email).First(&existing).Error; err != nil {
		result := db.Create(&admin)
		if result.Error != nil {
			log.Printf("Failed to seed admin: %v", result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created default admin: %s\n", admin.Email)
		}
	} else if forceAdmin && defaultAdminPassword != "" {
		if err := existing.SetPassword(defaultAdminPassword); err == nil {
			db.Save(&existing)
			fmt.Printf("✓ Updated existing admin password for: %s\n", existing.Email)
		} else {
			log.Printf("Failed to update existing admin password: %v", err)
		}
	} else {
		fmt.Printf("  Admin already exists: %s\n", existing.Email)
	}

	fmt.Println("\n✓ Database seeding completed successfully!")
	fmt.Println("  You can now start the application and see sample data.")
}
