// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default identification thresholds.
const (
	DefaultDiscardThreshold = 0.1
	DefaultAcceptThreshold  = 0.5
	DefaultTargetDuration   = 3000 * time.Millisecond
)

// DefaultContentFiles are the catalog objects published in the public bucket.
var DefaultContentFiles = []string{
	"bird_sounds/9f2b7e84-5623-4029-bcfd-f99f2d7611e8.json",
	"bird_sounds/184a8951-9a41-4331-acf2-fbba23b88a62.json",
	"bird_sounds/2956ab09-3218-4ad2-bdef-fcccaf8b0008.json",
	"bird_sounds/a04bb69e-f217-4e30-995b-cc1beddcc79e.json",
	"bird_sounds/assets/9f2b7e84-5623-4029-bcfd-f99f2d7611e8-EN.mp3",
	"bird_sounds/assets/184a8951-9a41-4331-acf2-fbba23b88a62-EN.mp3",
	"bird_sounds/assets/2956ab09-3218-4ad2-bdef-fcccaf8b0008-EN.mp3",
	"bird_sounds/assets/a04bb69e-f217-4e30-995b-cc1beddcc79e-EN.mp3",
	"bird_maps/9f2b7e84-2176-4029-bcfd-f99f2d7611e8.json",
	"bird_maps/59c066b0-4765-4239-aa9b-c31d212d9697.json",
	"bird_maps/78ff70af-c678-486c-876f-9a588a567385.json",
	"bird_maps/assets/mapbirdbiod.jpg",
	"bird_maps/assets/mapbirddef.jpg",
	"bird_maps/assets/mapbirdlocation.jpg",
}

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "birdwatch")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.timezone", "Local")
	viper.SetDefault("main.log.console", true)
	viper.SetDefault("main.log.file", "")

	viper.SetDefault("webserver.port", "8000")
	viper.SetDefault("webserver.maxupload", "20M")
	viper.SetDefault("webserver.ratelimit", 0.0)
	viper.SetDefault("webserver.burst", 5)
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("audio.targetduration", DefaultTargetDuration)
	viper.SetDefault("audio.ffmpegpath", "")
	viper.SetDefault("audio.tempdir", "")

	viper.SetDefault("detector.backend", "local")
	viper.SetDefault("detector.modelpath", "model/BirdNET_GLOBAL_6K_V2.4_Model_FP32.tflite")
	viper.SetDefault("detector.labelpath", "model/labels.txt")
	viper.SetDefault("detector.embeddingmodelpath", "")
	viper.SetDefault("detector.sensitivity", 1.0)
	viper.SetDefault("detector.threads", 0)
	viper.SetDefault("detector.minconfidence", 0.0)
	viper.SetDefault("detector.overlap", 0.0)
	viper.SetDefault("detector.remoteurl", "http://localhost:8080")
	viper.SetDefault("detector.timeout", 30*time.Second)

	viper.SetDefault("identification.discardthreshold", DefaultDiscardThreshold)
	viper.SetDefault("identification.acceptthreshold", DefaultAcceptThreshold)

	viper.SetDefault("classifier.modelpath", "model/local_species_mlp.json")
	viper.SetDefault("classifier.labelpath", "")
	viper.SetDefault("classifier.labels", map[string]string{
		"1": "Doliornis sclateri",
		"2": "Hapalopsittaca melanotis",
	})

	viper.SetDefault("content.datadir", "data")
	viper.SetDefault("content.backend", "http")
	viper.SetDefault("content.bucketurl", "https://storage.googleapis.com/birdwatching_app")
	viper.SetDefault("content.bucket", "birdwatching_app")
	viper.SetDefault("content.files", DefaultContentFiles)
	viper.SetDefault("content.cachettl", 5*time.Minute)

	viper.SetDefault("speciesinfo.enabled", true)
	viper.SetDefault("speciesinfo.baseurl", "https://en.wikipedia.org/api/rest_v1")
	viper.SetDefault("speciesinfo.ratelimit", 1.0)
	viper.SetDefault("speciesinfo.cachettl", 24*time.Hour)
	viper.SetDefault("speciesinfo.timeout", 10*time.Second)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "birdwatch/identifications")
	viper.SetDefault("mqtt.clientid", "birdwatch")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
}
