// Package hive is a plugin host for services that discover each other and
// receive configuration through a shared redis.
//
// # Architecture
//
//   - App: reads the bootstrap configuration, connects the finder and drives
//     plugins and components through their lifecycle
//   - OrderPlugins: computes the plugin load order from declared
//     dependencies, enabling required plugins implicitly
//   - finder: service registry, config distribution and pub/sub over redis
//   - plugins: the plugin contract, factory registry and dependency sequencer
//
// # Lifecycle
//
// Init loads plugins in dependency order and calls Init on each, then
// AfterInitAll on all of them. Start runs BeforeStartAll, Start and
// AfterStartAll in load order. Stop runs BeforeStopAll, Stop and
// AfterStopAll in reverse load order, after the finder has deregistered.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "github.com/go-lynx/hive"
//	    "github.com/go-lynx/hive/boot"
//	)
//
//	func main() {
//	    boot.NewApplication(hive.Env{ServerID: "orders", Version: "v1.0.0"}).Run()
//	}
//
// boot links the built-in redis and mq plugins. A minimal configuration:
//
//	hive:
//	  closeBanner: true
//	  plugins:
//	    redis:
//	      enable: true
//	  mservice:
//	    enable: true
//	    port: 8080
//	    finder:
//	      enable: true
//	      base:
//	        redis:
//	          addr: 127.0.0.1:6379
//	      naming:
//	        enable: true
//	redis:
//	  instance:
//	    main: { host: 127.0.0.1, port: 6379 }
package hive
