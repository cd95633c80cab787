// Package simulator streams synthetic accelerometer readings to an accelsock
// server, standing in for a phone when none is at hand.
//
// A Client speaks the same socket protocol as the browser page: it reads
// the session event on connect, then sends accel_data events. Motion
// generates the readings; RunHeadless drives a Client on a ticker for
// scripted runs, while the ui package drives it interactively.
//
// Example:
//
//	client, err := simulator.Dial(ctx, "wss://192.168.1.20:5000/ws", simulator.DialOptions{
//	    CAFile: "local-ca.crt",
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sent, err := simulator.RunHeadless(ctx, client, simulator.NewMotion(), simulator.DefaultInterval, 50)
package simulator
