package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type ProductEntry struct {
	ID    string  `yaml:"id"`
	Kind  string  `yaml:"kind"`
	Price float64 `yaml:"price"`
	Title string  `yaml:"title"`
}

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		AckTTLH  int    `yaml:"ack_ttl_hours"`
	} `yaml:"redis"`
	Firebase struct {
		CredentialsFile string `yaml:"credentials_file"`
		ProjectID       string `yaml:"project_id"`
		AnomalyTopic    string `yaml:"anomaly_topic"`
	} `yaml:"firebase"`
	Verification struct {
		ProductionURL string `yaml:"production_url"`
		SandboxURL    string `yaml:"sandbox_url"`
	} `yaml:"verification"`
	Storage struct {
		Bucket   string `yaml:"bucket"`
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"storage"`
	Billing struct {
		Products []ProductEntry `yaml:"products"`
	} `yaml:"billing"`
}

func LoadConfig() Config {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		log.Fatalf("Failed to unmarshal config data: %v", err)
	}
	return cfg
}
